package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/devfolio/accountguard/handlers"
	"github.com/devfolio/accountguard/internal/auditlog"
	"github.com/devfolio/accountguard/internal/config"
	"github.com/devfolio/accountguard/internal/consistency"
	"github.com/devfolio/accountguard/internal/database"
	"github.com/devfolio/accountguard/internal/identity"
	"github.com/devfolio/accountguard/internal/oidc"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/internal/reconcile"
	"github.com/devfolio/accountguard/pkg/logger"
	"github.com/devfolio/accountguard/pkg/metrics"
	"github.com/devfolio/accountguard/pkg/middleware"
)

var startTime = time.Now()

// Remediation paths a suspended user may still reach.
var suspensionAllowList = []string{
	"/api/me/suspension",
	"/api/me/complete-profile",
}

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MongoDB is the authoritative store; refuse to start without it.
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		logger.Fatalf("failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())
	db := client.Database(cfg.MongoDB.Database)

	profileRepo := profiles.NewMongoRepository(db.Collection("profiles"))
	logs := auditlog.NewMongoLogs(db.Collection("inconsistencyLogs"))
	deleted := auditlog.NewMongoDeletedAccounts(db.Collection("deletedAccounts"))

	provider := identity.NewKeycloakProvider(cfg.Keycloak.URL, cfg.Keycloak.Realm, cfg.Keycloak.ClientID, cfg.Keycloak.ClientSecret)
	svc := consistency.NewService(profileRepo, logs, deleted, provider)

	// Reconciliation: daily scan, hourly sweep, monthly log GC.
	reconciler := reconcile.NewReconciler(svc, profileRepo, logs)
	scheduler := reconcile.NewScheduler(reconciler, reconcile.Config{
		FullScanInterval:    cfg.Reconcile.FullScanInterval,
		ExpirySweepInterval: cfg.Reconcile.ExpirySweepInterval,
		LogGCInterval:       cfg.Reconcile.LogGCInterval,
		LogRetention:        cfg.Reconcile.LogRetention,
	})
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatalf("failed to start reconcile scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Token verifier: real OIDC against Keycloak, or the insecure parser
	// under explicit opt-in for local/integration runs.
	var verifier middleware.Verifier
	if strings.EqualFold(os.Getenv("ALLOW_INSECURE_TOKEN"), "true") {
		logger.Warnf("ALLOW_INSECURE_TOKEN=true: token signatures are NOT verified")
		verifier = oidc.NewInsecureVerifier()
	} else if cfg.Keycloak.URL != "" {
		issuer := cfg.Keycloak.URL + "/realms/" + cfg.Keycloak.Realm
		v, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Fatalf("failed to create OIDC verifier: %v", err)
		}
		verifier = v
	} else {
		logger.Fatalf("KEYCLOAK_URL is required (or set ALLOW_INSECURE_TOKEN=true)")
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Optional Redis-backed rate limiting on the API surface.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"mongo":     client.Ping(c.Request.Context(), nil) == nil,
			"scheduler": scheduler.State() == reconcile.StateRunning,
		}
		for _, ok := range deps {
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
	})

	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Authenticated API surface: every request passes the inline
	// consistency check, then the suspension gate.
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(verifier))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	api.Use(middleware.ConsistencyCheck(svc))
	api.Use(middleware.SuspensionGate(suspensionAllowList...))

	handlers.NewSelfServiceHandler(svc, profileRepo).Register(api)
	handlers.NewAdminHandler(svc, logs, deleted, profileRepo).Register(api)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}
