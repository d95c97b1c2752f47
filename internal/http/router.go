// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// compression, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/config"
	"github.com/dkachan/go-passport-office/internal/http/handlers"
	"github.com/dkachan/go-passport-office/internal/http/middleware"
	"github.com/dkachan/go-passport-office/internal/services"
	"github.com/dkachan/go-passport-office/internal/storage"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, CORS, compression,
// health and metrics endpoints, then the versioned API with its citizen and
// staff groups.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS
//  9. gzip compression
func RegisterRoutes(r *gin.Engine, db *gorm.DB, photos storage.Store, notifier services.Notifier, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit: uploads plus form overhead
	r.Use(limitBody(cfg.MaxUploadBytes + (1 << 20)))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// 9) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "method not allowed"})
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/notifier/storage
	taskSvc := services.NewTaskService(db, notifier)
	workflowSvc := services.NewWorkflowService(db, notifier)

	ch := handlers.NewCitizenHandlers(db, taskSvc, photos, cfg.MaxUploadBytes)
	sh := handlers.NewStaffHandlers(taskSvc, workflowSvc)

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	api.Use(middleware.Identity(db))

	docs := api.Group("/documents")
	docs.Use(middleware.RequireCitizen())
	{
		docs.GET("", ch.ListDocuments)

		docs.GET("/internal-passport", ch.GetInternalPassport)
		docs.POST("/internal-passport", ch.CreateInternalPassport)
		docs.PUT("/internal-passport", ch.RestoreInternalPassport)

		docs.GET("/foreign-passport", ch.GetForeignPassport)
		docs.POST("/foreign-passport", ch.CreateForeignPassport)
		docs.PUT("/foreign-passport", ch.RestoreForeignPassport)

		docs.GET("/visas", ch.ListVisas)
		docs.POST("/visas", ch.CreateVisa)
		docs.PATCH("/visas/:id/extend", ch.ExtendVisa)
		docs.PUT("/visas/:id", ch.RestoreVisa)

		docs.GET("/address", ch.GetAddress)
		docs.PATCH("/address", ch.ChangeAddress)

		docs.GET("/user-data", ch.GetUserData)
		docs.PATCH("/user-data", ch.ChangeUserData)
	}

	staff := api.Group("/staff")
	staff.Use(middleware.RequireStaff())
	{
		staff.GET("/tasks", sh.ListTasks)

		staff.POST("/create-passport/:id", sh.CreatePassport)
		staff.POST("/create-foreign-passport/:id", sh.CreateForeignPassport)
		staff.POST("/restore-passport/:id", sh.RestorePassport)
		staff.POST("/restore-foreign-passport/:id", sh.RestoreForeignPassport)
		staff.POST("/create-visa/:id", sh.CreateVisa)
		staff.PATCH("/extend-visa/:id", sh.ExtendVisa)
		staff.POST("/restore-visa/:id", sh.RestoreVisa)
		staff.PUT("/change-user-data/:id", sh.ChangeUserData)
		staff.PUT("/change-address/:id", sh.ChangeAddress)
		staff.POST("/reject/:id", sh.Reject)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
