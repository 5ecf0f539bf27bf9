package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dilip0552/PresenSync/internal/admission"
	"github.com/Dilip0552/PresenSync/internal/auth"
	"github.com/Dilip0552/PresenSync/internal/config"
	"github.com/Dilip0552/PresenSync/internal/docstore"
	"github.com/Dilip0552/PresenSync/internal/httpapi"
	"github.com/Dilip0552/PresenSync/internal/httpmiddleware"
	"github.com/Dilip0552/PresenSync/internal/notify"
	"github.com/Dilip0552/PresenSync/internal/queue"
	"github.com/Dilip0552/PresenSync/internal/report"
	"github.com/Dilip0552/PresenSync/internal/session"
	"github.com/Dilip0552/PresenSync/internal/store"
	"github.com/Dilip0552/PresenSync/internal/users"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	docs, err := docstore.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer docs.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "presensync:notifications")
	}

	userRepo := users.NewRepository(docs, cfg.AppID)
	sessionRepo := session.NewRepository(docs, cfg.AppID)
	notifier := notify.NewService(docs, userRepo, q, cfg.AppID)
	exporter := report.NewExporter(docs, cfg.AppID)
	admissions := admission.NewService(docs, admission.Config{
		AppID:                cfg.AppID,
		LivenessWindow:       cfg.QRLivenessWindow,
		FutureSkew:           cfg.QRFutureSkew,
		Grace:                cfg.SessionGrace,
		RadiusMeters:         cfg.GeoRadiusMeters,
		GeoEnforce:           cfg.GeoEnforce,
		StrictDuplicateCheck: cfg.StrictDuplicateCheck,
	})

	httpapi.RegisterValidators()
	h := httpapi.New(admissions, sessionRepo, userRepo, notifier, exporter, docs, cfg.AppID)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/", h.Root)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := docs.Healthy(c.Request.Context())
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
	})

	authed := r.Group("/", auth.Middleware(cfg.JWTSigningKey, cfg.JWTIssuer, userRepo))
	authed.POST("/attendance/mark", h.MarkAttendance)
	authed.GET("/attendance/records", h.ListRecords)

	teachers := authed.Group("/", auth.RequireRole("teacher"))
	teachers.POST("/sessions", h.CreateSession)
	teachers.GET("/sessions", h.ListSessions)
	teachers.PUT("/sessions/:id/status", h.SetSessionStatus)
	teachers.GET("/sessions/:id/qr", h.SessionQR)
	teachers.GET("/reports/sessions/:id/xlsx", h.ExportSessionReport)

	admins := authed.Group("/admin", auth.RequireRole("admin"))
	admins.GET("/users", h.ListUsers)
	admins.PUT("/users/:uid/role", h.UpdateUserRole)
	admins.DELETE("/users/:uid", h.DeleteUser)
	admins.POST("/notifications/send_global", h.SendGlobalNotification)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
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
