// Command document runs the document API and realtime channel without the
// account endpoints. Tokens are issued elsewhere and verified with JWT_SECRET.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/handlers"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/database"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/handler"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/repository"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/service"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/realtime"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/tokens"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/users"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		logger.Fatalf("JWT_SECRET is required")
	}
	port := os.Getenv("DOC_SERVICE_PORT")
	if port == "" {
		port = "5010"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo repository.Repository = repository.NewMemoryRepo()
	var directory service.UserDirectory = users.NewMemoryUserRepository()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("cannot connect to MongoDB (%v), using memory-backed repo", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			db := client.Database(cfg.MongoDB.Database)
			repo = repository.NewMongoRepo(db.Collection(database.DocumentsCollection))
			directory = users.NewMongoUserRepository(db.Collection(database.UsersCollection))
		}
	}

	hub := realtime.NewHub()
	svc := service.New(repo, service.Options{Users: directory, Notifier: hub})
	verifier := tokens.NewHS256Verifier(cfg.JWT.Secret)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	handler.RegisterDocumentRoutes(r, svc, middleware.AuthMiddleware(verifier), middleware.OptionalAuth(verifier))
	handlers.NewRealtimeHandler(hub, svc, verifier, cfg.Realtime, cfg.Server.FrontendURL).Register(r)
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })

	server := &http.Server{Addr: ":" + port, Handler: r, ReadTimeout: cfg.Server.ReadTimeout}
	go func() {
		logger.Infof("document service listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
	hub.Close()
}
