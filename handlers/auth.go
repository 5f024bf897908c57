package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/models"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/sessions"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/tokens"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/users"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type profileRequest struct {
	Name   *string `json:"name" binding:"omitempty,max=50"`
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio" binding:"omitempty,max=500"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

type forgotRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

// Seeder gives newly registered accounts their starter documents.
type Seeder interface {
	SeedSamples(ctx context.Context, userID string) error
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	seeder      Seeder
}

func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, seeder Seeder) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, seeder: seeder}
}

// Register mounts the auth routes under /auth. requireAuth guards the
// routes that act on the signed-in account.
func (h *AuthHandler) Register(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/register", h.SignUp)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/forgot-password", h.ForgotPassword)
	a.PUT("/reset-password/:token", h.ResetPassword)
	a.POST("/logout", requireAuth, h.Logout)
	a.GET("/me", requireAuth, h.Me)
	a.PUT("/profile", requireAuth, h.UpdateProfile)
	a.PUT("/password", requireAuth, h.ChangePassword)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return 15 * time.Minute
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return 7 * 24 * time.Hour
}

// issue returns a fresh access token and refresh session for u.
func (h *AuthHandler) issue(c *gin.Context, status int, u *models.User) {
	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.ID, c.Request.UserAgent(), h.refreshTTL())
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		apperr.Respond(c, err)
		return
	}
	h.respondTokens(c, status, u, rft)
}

func (h *AuthHandler) respondTokens(c *gin.Context, status int, u *models.User, refresh string) {
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(status, gin.H{
		"success":      true,
		"token":        access,
		"refreshToken": refresh,
		"expiresIn":    int(h.accessTTL().Seconds()),
		"user":         u.Public(),
	})
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindInvalidArgument, err, "Invalid request: "+err.Error()))
		return false
	}
	return true
}

// SignUp creates an account, seeds its sample documents and signs it in.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.usersSvc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if h.seeder != nil && h.cfg.Auth.SeedSampleDocs {
		if err := h.seeder.SeedSamples(c.Request.Context(), u.ID); err != nil {
			logger.Warnf("seed sample documents for %s: %v", u.ID, err)
		}
	}
	h.issue(c, http.StatusCreated, u)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.usersSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

// Refresh rotates a refresh token and returns a new token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, next, err := h.sessionsSvc.Rotate(c.Request.Context(), req.RefreshToken, h.refreshTTL())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	u, err := h.usersSvc.FindByID(c.Request.Context(), sess.UserID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			err = apperr.Unauthorized("invalid refresh token")
		}
		apperr.Respond(c, err)
		return
	}
	h.respondTokens(c, http.StatusOK, u, next)
}

// Logout drops the refresh session, if given, and blacklists the current
// access token until it would have expired anyway.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if ttl := tokens.RemainingTTL(middleware.Claims(c), time.Now()); ttl > 0 {
		if err := sessions.BlacklistAccessToken(c.Request.Context(), c.GetString(middleware.TokenKey), ttl); err != nil {
			logger.Errorf("failed to blacklist access token: %v", err)
			apperr.Respond(c, err)
			return
		}
	}
	if req.RefreshToken != "" {
		if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
			apperr.Respond(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.usersSvc.FindByID(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u.Public()})
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.usersSvc.UpdateProfile(c.Request.Context(), middleware.Identity(c), users.ProfileUpdate{
		Name:   req.Name,
		Avatar: req.Avatar,
		Bio:    req.Bio,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u.Public()})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if !bindJSON(c, &req) {
		return
	}
	id := middleware.Identity(c)
	if err := h.usersSvc.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		apperr.Respond(c, err)
		return
	}
	u, err := h.usersSvc.FindByID(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

// ForgotPassword issues a reset token. Mail delivery is not wired up, so
// the reset link is written to the log.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotRequest
	if !bindJSON(c, &req) {
		return
	}
	raw, u, err := h.usersSvc.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	link := strings.TrimRight(h.cfg.Server.FrontendURL, "/") + "/reset-password/" + raw
	logger.Infof("password reset requested for %s: %s", u.Email, link)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset link generated"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.usersSvc.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}
