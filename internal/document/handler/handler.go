package handler

import (
	"net/http"
	"strconv"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/service"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

type createRequest struct {
	Title    string   `json:"title" binding:"required"`
	Content  string   `json:"content"`
	IsPublic bool     `json:"isPublic"`
	Tags     []string `json:"tags"`
}

type updateRequest struct {
	Title           *string   `json:"title"`
	Content         *string   `json:"content"`
	IsPublic        *bool     `json:"isPublic"`
	Tags            *[]string `json:"tags"`
	IsArchived      *bool     `json:"isArchived"`
	ChangeNote      string    `json:"changeNote" binding:"max=500"`
	ExpectedVersion *int      `json:"expectedVersion" binding:"omitempty,min=1"`
}

func (r updateRequest) command() document.UpdateCommand {
	cmd := document.UpdateCommand{
		Title:           r.Title,
		Content:         r.Content,
		IsPublic:        r.IsPublic,
		IsArchived:      r.IsArchived,
		ChangeNote:      r.ChangeNote,
		ExpectedVersion: r.ExpectedVersion,
	}
	if r.Tags != nil {
		cmd.Tags = *r.Tags
		cmd.SetTags = true
	}
	return cmd
}

type shareRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Permission string `json:"permission" binding:"required,oneof=view edit"`
}

type restoreRequest struct {
	ExpectedVersion *int `json:"expectedVersion" binding:"omitempty,min=1"`
}

// RegisterDocumentRoutes mounts the document API. required rejects anonymous
// callers; optional lets them through so public documents stay readable.
func RegisterDocumentRoutes(r gin.IRouter, svc *service.Service, required, optional gin.HandlerFunc) {
	h := &handler{svc: svc}
	g := r.Group("/api/documents")
	g.GET("", required, h.list)
	g.GET("/search", required, h.search)
	g.GET("/:id", optional, h.get)
	g.POST("", required, h.create)
	g.PUT("/:id", required, h.update)
	g.DELETE("/:id", required, h.remove)
	g.POST("/:id/share", required, h.share)
	g.DELETE("/:id/share/:userId", required, h.unshare)
	g.GET("/:id/versions", required, h.versions)
	g.POST("/:id/restore/:versionId", required, h.restore)
	g.POST("/:id/export", required, h.export)
	g.GET("/:id/export/:version", required, h.download)
}

type handler struct {
	svc *service.Service
}

func badRequest(c *gin.Context, err error) {
	apperr.Respond(c, apperr.Wrap(apperr.KindInvalidArgument, err, "Invalid request: "+err.Error()))
}

func (h *handler) list(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	p, err := h.svc.List(c.Request.Context(), middleware.Identity(c), page, limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(p.Items),
		"total":   p.Total,
		"pagination": gin.H{
			"current": p.Page,
			"pages":   p.Pages,
			"hasNext": int64(p.Page*p.PageSize) < p.Total,
			"hasPrev": p.Page > 1,
		},
		"data": p.Items,
	})
}

func (h *handler) search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	docs, err := h.svc.Search(c.Request.Context(), c.Query("q"), middleware.Identity(c), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(docs), "data": docs})
}

func (h *handler) get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d})
}

func (h *handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.svc.Create(c.Request.Context(), document.CreateCommand{
		Title:    req.Title,
		Content:  req.Content,
		IsPublic: req.IsPublic,
		Tags:     req.Tags,
	}, middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": d})
}

func (h *handler) update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, changes, err := h.svc.Update(c.Request.Context(), c.Param("id"), req.command(), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d, "changes": changes})
}

func (h *handler) remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), middleware.Identity(c)); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Document deleted successfully"})
}

func (h *handler) share(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.svc.Share(c.Request.Context(), c.Param("id"), req.Email, document.Permission(req.Permission), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d, "message": "Document shared with " + req.Email})
}

func (h *handler) unshare(c *gin.Context) {
	d, err := h.svc.Unshare(c.Request.Context(), c.Param("id"), c.Param("userId"), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d, "message": "User removed from document sharing"})
}

func (h *handler) versions(c *gin.Context) {
	list, err := h.svc.Versions(c.Request.Context(), c.Param("id"), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list.Versions, "currentVersion": list.CurrentVersion})
}

func (h *handler) restore(c *gin.Context) {
	var req restoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	d, err := h.svc.Restore(c.Request.Context(), c.Param("id"), c.Param("versionId"), middleware.Identity(c), req.ExpectedVersion)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	restored := d.Versions[len(d.Versions)-1].Changes
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d, "message": "Document " + lowerFirst(restored)})
}

func (h *handler) export(c *gin.Context) {
	out, err := h.svc.Export(c.Request.Context(), c.Param("id"), middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}

func (h *handler) download(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		apperr.Respond(c, apperr.InvalidArgument("Invalid request: version must be a number"))
		return
	}
	body, filename, err := h.svc.DownloadExport(c.Request.Context(), c.Param("id"), version, middleware.Identity(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, -1, "text/markdown; charset=utf-8", body, map[string]string{
		"Content-Disposition": `attachment; filename="` + filename + `"`,
	})
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
