package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kiosk/internal/auth"
	"kiosk/internal/config"
	"kiosk/internal/handler"
	"kiosk/internal/history"
	"kiosk/internal/httpmiddleware"
	"kiosk/internal/presence"
	"kiosk/internal/store"
	"kiosk/internal/visitors"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	st, redisClient, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := presence.NewService(st, presence.Config{
		WriteWindow: cfg.WriteWindow,
		AttemptsCap: cfg.AttemptsCap,
		MemberRates: presence.MemberRates{
			Jeune: cfg.MemberJeune, Etudiant: cfg.MemberEtudiant,
			Adulte: cfg.MemberAdulte, Senior: cfg.MemberSenior,
		},
		VisitorRates: presence.VisitorRates{
			Enfant: cfg.VisitorEnfant, Jeune: cfg.VisitorJeune, Adulte: cfg.VisitorAdulte,
		},
	}, logger)
	archiver := history.NewArchiver(st, cfg.ArchiveWindow, logger)
	hist := history.NewService(st, cfg.ArchiveWindow, logger)
	exporter := history.NewExporter(st, cfg.DataDir+"/exports", logger)
	profileSvc := visitors.NewService(st, logger)

	h := handler.New(handler.Config{
		Presences:     svc,
		Archiver:      archiver,
		History:       hist,
		Exporter:      exporter,
		Visitors:      profileSvc,
		AdminPassword: cfg.AdminPassword,
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		AccessTTL:     cfg.AccessTTL,
	}, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		health := gin.H{"status": "ok", "store": cfg.StoreBackend}
		status := http.StatusOK
		if redisClient != nil {
			healthy := redisClient.Healthy(c.Request.Context())
			health["redis"] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, health)
	})

	adminMW := auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AdminPassword != "")
	h.RegisterRoutes(r, adminMW)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// openStore selects the document backend by config, the same way the
// check-in queue used to be picked.
func openStore(cfg config.App, logger *zap.Logger) (store.Store, *store.Redis, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil, func() {}, nil
	case "redis":
		r := store.NewRedis(cfg.RedisAddr)
		if !r.Healthy(context.Background()) {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
		return r, r, func() { _ = r.Client.Close() }, nil
	case "postgres":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, nil, func() { _ = pg.Close() }, nil
	default:
		f, err := store.NewFile(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return f, nil, func() {}, nil
	}
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "production" || env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// requestLogger logs one line per request, skipping probes.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func corsMiddleware(allowed string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowed == "*" || allowed == "":
			if origin == "" {
				origin = "*"
			}
		case origin != "" && strings.Contains(allowed, origin):
			// keep the request origin
		default:
			origin = strings.Split(allowed, ",")[0]
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
