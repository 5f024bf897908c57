package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/handlers"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/database"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/handler"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/repository"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/service"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/oidc"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/realtime"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/search"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/sessions"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/storage"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/tokens"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/users"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/metrics"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v meili=%v minio=%v",
		cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Search.MeiliURL != "", storage.Configured(cfg.MinIO))
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := gin.New()
	r.Use(corsMiddleware(cfg.Server.FrontendURL), gin.Logger(), gin.Recovery())

	// Redis first so the rate limiter, sessions and the realtime bridge can use it.
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			sessions.SetBlacklistClient(rdb)
			logger.Infof("connected to Redis at %s", addr)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Stores: Mongo when reachable, otherwise in memory.
	var (
		mongoClient *mongo.Client
		docRepo     repository.Repository = repository.NewMemoryRepo()
		userRepo    users.UserRepository  = users.NewMemoryUserRepository()
		sessRepo    sessions.Repository   = sessions.NewMemoryRepository()
	)
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			logger.Warnf("using in-memory stores: %v", err)
		} else {
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()
			db := mongoClient.Database(cfg.MongoDB.Database)
			docRepo = repository.NewMongoRepo(db.Collection(database.DocumentsCollection))
			userRepo = users.NewMongoUserRepository(db.Collection(database.UsersCollection))
			sessRepo = sessions.NewMongoRepository(db.Collection(database.SessionsCollection))
		}
	} else {
		logger.Warnf("MONGODB_URI not set; documents and accounts are kept in memory")
	}
	if rdb != nil {
		sessRepo = sessions.NewRedisRepository(rdb, "")
	}

	userSvc := users.NewService(userRepo, cfg.Auth.BcryptCost, cfg.Auth.ResetTokenTTL)
	sessSvc := sessions.NewService(sessRepo)

	verifier := buildVerifier(ctx, cfg)

	hub := realtime.NewHub()
	if rdb != nil && cfg.Realtime.UseRedisBridge {
		bridge := realtime.NewRedisBridge(rdb, uuid.NewString())
		if err := bridge.Start(ctx, hub); err != nil {
			logger.Warnf("realtime bridge disabled: %v", err)
		} else {
			hub.SetBridge(bridge)
			logger.Infof("realtime bridge started (node %s)", bridge.NodeID())
		}
	}

	opts := service.Options{Users: userSvc, Notifier: hub, ExportExpiry: cfg.MinIO.URLExpiry}
	var meili *search.Meili
	if cfg.Search.MeiliURL != "" {
		meili = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliAPIKey, 30*time.Second)
		defer meili.Close()
		opts.Indexer = meili
		opts.Searcher = meili
	}
	if storage.Configured(cfg.MinIO) {
		st, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("document export disabled: %v", err)
		} else {
			opts.Exporter = st
		}
	}
	docSvc := service.New(docRepo, opts)

	required := middleware.AuthMiddleware(verifier)
	optional := middleware.OptionalAuth(verifier)

	handlers.NewAuthHandler(cfg, userSvc, sessSvc, docSvc).Register(r.Group("/api"), required)
	handler.RegisterDocumentRoutes(r, docSvc, required, optional)
	handlers.NewRealtimeHandler(hub, docSvc, verifier, cfg.Realtime, cfg.Server.FrontendURL).Register(r)
	handlers.RegisterSwagger(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when every configured dependency answers
	r.GET("/ready", func(c *gin.Context) {
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{}
		ready := true
		if mongoClient != nil {
			deps["mongo"] = mongoClient.Ping(pctx, nil) == nil
			ready = ready && deps["mongo"]
		}
		if rdb != nil {
			deps["redis"] = rdb.Ping(pctx).Err() == nil
			ready = ready && deps["redis"]
		}
		if meili != nil {
			// search falls back to the store, so it never blocks readiness
			deps["search"] = meili.Healthy()
		}
		deps["export"] = opts.Exporter != nil
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "topics": len(hub.Topics()), "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("starting collabdocs API on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
	// websocket connections are hijacked and not covered by Shutdown
	hub.Close()
}

// buildVerifier accepts our own HS256 tokens and, when configured, tokens
// from the Keycloak realm. ALLOW_INSECURE_TOKEN=true adds a verifier that
// skips signature checks, for integration environments only.
func buildVerifier(ctx context.Context, cfg *config.Config) oidc.Chain {
	var chain oidc.Chain
	if cfg.JWT.Secret != "" {
		chain = append(chain, tokens.NewHS256Verifier(cfg.JWT.Secret))
	}
	kc, err := oidc.NewKeycloakVerifier(ctx, cfg.Keycloak)
	switch {
	case err != nil:
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	case kc != nil:
		chain = append(chain, kc)
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
		if cfg.IsProduction() {
			logger.Warnf("ALLOW_INSECURE_TOKEN ignored in production")
		} else {
			logger.Warn("enabling insecure token verifier (integration mode)")
			chain = append(chain, oidc.NewInsecureVerifier())
		}
	}
	if len(chain) == 0 {
		logger.Warnf("no token verifier configured; every authenticated route will answer 401")
	}
	return chain
}

func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
