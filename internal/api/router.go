// Package api wires the HTTP surface: middleware chain, route groups, and the
// background services that run alongside the server.
//
// Middleware order matters. Correlation and metrics run outermost so every
// request is observable; the error translator wraps everything inside it so
// every c.Error() and panic downstream becomes the standard envelope; the
// activity interceptor runs innermost on the API groups so it observes the
// final status of each request.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/activity"
	"github.com/itz4blitz/glimmr-api-sub005/internal/api/admin"
	"github.com/itz4blitz/glimmr-api-sub005/internal/api/hospitals"
	"github.com/itz4blitz/glimmr-api-sub005/internal/api/session"
	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/config"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
	"github.com/itz4blitz/glimmr-api-sub005/internal/jobs"
	"github.com/itz4blitz/glimmr-api-sub005/internal/middleware"
	"github.com/itz4blitz/glimmr-api-sub005/internal/pra"
	"github.com/itz4blitz/glimmr-api-sub005/internal/telemetry"
)

// BackgroundServices holds references to goroutine-owning resources that must
// be stopped during graceful shutdown. The caller (cmd/server) calls
// Shutdown() after the HTTP server has drained in-flight requests.
type BackgroundServices struct {
	scheduler *jobs.Scheduler
	limiter   middleware.Limiter
	shipper   activity.Shipper
}

// Scheduler exposes the job scheduler so cmd/server can start it once
// migrations have run.
func (bg *BackgroundServices) Scheduler() *jobs.Scheduler { return bg.scheduler }

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.scheduler != nil {
		bg.scheduler.Stop()
	}
	if bg.limiter != nil {
		bg.limiter.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("failed to close activity shipper", "error", err)
		}
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, database *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Repositories
	userRepo := repositories.NewUserRepository(database)
	hospitalRepo := repositories.NewHospitalRepository(database)
	priceRepo := repositories.NewPriceRepository(database)
	activityRepo := repositories.NewActivityRepository(database)
	jobRunRepo := repositories.NewJobRunRepository(database)

	// Activity pipeline
	shipper, err := activity.NewShipper(shipperConfigs(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize activity shippers: %w", err)
	}
	activitySvc := activity.NewService(activityRepo, shipper, cfg.ActivitySuspiciousLoginThreshold())

	// Hot-reloadable tunables flow into long-lived components through this
	// hook; the skip-list is read per request via the closure passed to the
	// activity middleware.
	cfg.SetOnReload(func(c *config.Config) {
		activitySvc.SetSuspiciousThreshold(c.ActivitySuspiciousLoginThreshold())
		telemetry.SetLogLevel(c.Logging.Level)
	})

	// Background jobs
	praClient := pra.NewClient(cfg.PRA)
	scheduler := jobs.NewScheduler(jobRunRepo)
	importJob := jobs.NewHospitalImportJob(praClient, hospitalRepo)
	scanJob := jobs.NewPRAScanJob(praClient, hospitalRepo)
	priceJob := jobs.NewPriceUpdateJob(praClient, hospitalRepo, priceRepo)
	scheduler.Register(importJob, 0)
	scheduler.Register(scanJob, cfg.Jobs.PRAScanInterval)
	scheduler.Register(priceJob, cfg.Jobs.PriceUpdateInterval)
	scheduler.Register(jobs.NewFullRefreshJob(importJob, scanJob, priceJob), 0)
	scheduler.Register(jobs.NewCleanupJob(activityRepo, cfg.ActivityRetentionDays), cfg.Jobs.CleanupInterval)
	scheduler.Register(jobs.NewAnalyticsRefreshJob(database), cfg.Jobs.AnalyticsRefreshInterval)

	// Rate limiting
	limiter, err := middleware.NewLimiter(cfg.Security.RateLimiting)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defaultProfile := middleware.Profile{
		Name:      "default",
		PerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
		Burst:     cfg.Security.RateLimiting.Burst,
	}
	authProfile := middleware.Profile{
		Name:      "auth",
		PerMinute: cfg.Security.RateLimiting.AuthRequestsPerMin,
		Burst:     cfg.Security.RateLimiting.AuthRequestsPerMin,
	}
	expensiveProfile := middleware.Profile{
		Name:      "expensive",
		PerMinute: cfg.Security.RateLimiting.ExpensiveRequestsPerMin,
		Burst:     cfg.Security.RateLimiting.ExpensiveRequestsPerMin,
	}
	rateLimit := func(p middleware.Profile) gin.HandlerFunc {
		if !cfg.Security.RateLimiting.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimitMiddleware(limiter, p)
	}

	// Global middleware chain
	router.Use(middleware.CorrelationMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.ErrorHandler(cfg.IsProduction()))
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Unknown routes get the standard envelope too.
	router.NoRoute(func(c *gin.Context) {
		c.Error(apperr.NotFoundf("ROUTE_NOT_FOUND", "Cannot %s %s", c.Request.Method, c.Request.URL.Path))
	})

	// System endpoints, outside the activity interceptor and rate limits
	router.GET("/health", healthHandler(database))
	router.GET("/health/ready", readinessHandler(database))
	router.GET("/health/live", livenessHandler())
	router.GET("/version", versionHandler())

	// Handlers
	sessionHandlers := session.NewHandlers(cfg, userRepo, activitySvc)
	hospitalHandlers := hospitals.NewHandlers(hospitalRepo, priceRepo)
	userHandlers := admin.NewUserHandlers(cfg, userRepo)
	activityHandlers := admin.NewActivityHandlers(activitySvc)
	jobHandlers := admin.NewJobHandlers(scheduler, jobRunRepo)

	v1 := router.Group("/api/v1")
	if cfg.Activity.Enabled {
		v1.Use(middleware.ActivityMiddleware(activitySvc, cfg.ActivitySkipPaths))
	}

	// Auth endpoints. Login carries its own explicit activity records, so the
	// interceptor is suppressed there to avoid double-counting attempts.
	authGroup := v1.Group("/auth", rateLimit(authProfile))
	{
		authGroup.POST("/login", middleware.SkipActivityLog(), sessionHandlers.LoginHandler())
		authGroup.POST("/refresh", middleware.SkipActivityLog(), sessionHandlers.RefreshHandler())
		authGroup.POST("/logout", middleware.SkipActivityLog(), middleware.AuthMiddleware(userRepo), sessionHandlers.LogoutHandler())
		authGroup.POST("/password-reset", middleware.AuthMiddleware(userRepo), sessionHandlers.ChangePasswordHandler())
		authGroup.GET("/me", middleware.AuthMiddleware(userRepo), sessionHandlers.MeHandler())
	}

	// Public read surface
	publicGroup := v1.Group("", rateLimit(defaultProfile))
	{
		publicGroup.GET("/hospitals", hospitalHandlers.ListHandler())
		publicGroup.GET("/hospitals/:id", hospitalHandlers.GetHandler())
		publicGroup.GET("/hospitals/:id/prices", hospitalHandlers.PricesHandler())
	}

	// Manual catalog curation, for editors and admins
	curationGroup := v1.Group("/hospitals",
		rateLimit(defaultProfile),
		middleware.AuthMiddleware(userRepo),
		middleware.RequireRole(models.RoleAdmin, models.RoleEditor),
	)
	{
		curationGroup.POST("", hospitalHandlers.CreateHandler())
		curationGroup.PATCH("/:id", hospitalHandlers.UpdateHandler())
		curationGroup.DELETE("/:id", hospitalHandlers.DeleteHandler())
	}

	// Admin surface
	adminGroup := v1.Group("/admin",
		rateLimit(defaultProfile),
		middleware.AuthMiddleware(userRepo),
		middleware.RequireRole(models.RoleAdmin),
	)
	{
		adminGroup.GET("/users", userHandlers.ListHandler())
		adminGroup.POST("/users", userHandlers.CreateHandler())
		adminGroup.GET("/users/:userId", userHandlers.GetHandler())
		adminGroup.PATCH("/users/:userId", userHandlers.UpdateHandler())
		adminGroup.DELETE("/users/:userId", userHandlers.DeleteHandler())
		adminGroup.POST("/users/:userId/api-key", userHandlers.GenerateAPIKeyHandler())
		adminGroup.DELETE("/users/:userId/api-key", userHandlers.RevokeAPIKeyHandler())

		adminGroup.GET("/activity", activityHandlers.ListHandler())
		adminGroup.GET("/activity/stats", activityHandlers.StatsHandler())
		adminGroup.GET("/activity/:id", activityHandlers.GetHandler())

		adminGroup.GET("/jobs/runs", jobHandlers.ListRunsHandler())
		adminGroup.GET("/jobs/runs/:jobId", jobHandlers.GetRunHandler())

		// Manual job triggers are expensive by definition.
		triggers := adminGroup.Group("/jobs", rateLimit(expensiveProfile))
		{
			triggers.POST("/pra/scan", jobHandlers.TriggerHandler(models.JobPRAScan))
			triggers.POST("/pra/full-refresh", jobHandlers.TriggerHandler(models.JobPRAFullRefresh))
			triggers.POST("/price-update", jobHandlers.TriggerHandler(models.JobPriceUpdate))
			triggers.POST("/hospital-import", jobHandlers.TriggerHandler(models.JobHospitalImport))
			triggers.POST("/cleanup", jobHandlers.TriggerHandler(models.JobCleanup))
			triggers.POST("/analytics/refresh", jobHandlers.TriggerHandler(models.JobAnalyticsRefresh))
		}
	}

	bg := &BackgroundServices{
		scheduler: scheduler,
		limiter:   limiter,
		shipper:   shipper,
	}
	return router, bg, nil
}

// shipperConfigs converts the configuration-layer shipper settings into the
// activity package's types.
func shipperConfigs(cfg *config.Config) []activity.ShipperConfig {
	out := make([]activity.ShipperConfig, 0, len(cfg.Activity.Shippers))
	for _, s := range cfg.Activity.Shippers {
		sc := activity.ShipperConfig{Enabled: s.Enabled, Type: s.Type}
		if s.File != nil {
			sc.File = &activity.FileConfig{
				Path:       s.File.Path,
				MaxSizeMB:  s.File.MaxSizeMB,
				MaxBackups: s.File.MaxBackups,
			}
		}
		if s.Webhook != nil {
			sc.Webhook = &activity.WebhookConfig{
				URL:     s.Webhook.URL,
				Headers: s.Webhook.Headers,
				Timeout: time.Duration(s.Webhook.TimeoutSecs) * time.Second,
			}
		}
		out = append(out, sc)
	}
	return out
}

// healthHandler reports process and database health.
func healthHandler(database *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler reports whether the service should receive traffic.
func readinessHandler(database *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		if err := database.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// livenessHandler answers as long as the process is serving requests.
func livenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	}
}

// versionHandler returns the API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured log record per request. Output format
// follows the global slog handler configured in telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("correlation_id", middleware.CorrelationID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware applies the configured origin allow-list.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
