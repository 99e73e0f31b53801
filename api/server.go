// Package api serves the admin HTTP API of the scan subsystem.
//
//	@title						Host Scan Admin API
//	@version					1.0
//	@description				Inspect connection-time proxy scans, issued bans and the exemption list.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "hostscan/docs"
	"hostscan/logging"
)

// Config controls the router's middleware. Authentication is enabled when
// APIKey is set and rate limiting when Redis is set and RateLimit > 0.
type Config struct {
	APIKey    string
	Redis     *redis.Client
	RateLimit int64
	Logger    *slog.Logger
}

// NewRouter builds the Gin engine serving the API under /api/v1.
func NewRouter(deps Deps, cfg Config) *gin.Engine {
	logger := logging.For(cfg.Logger, "api")

	router := gin.New()
	router.Use(gin.Recovery(), RequestLoggingMiddleware(logger), SecurityHeadersMiddleware())
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	v1.GET("/healthz", healthHandler)

	protected := v1.Group("")
	if cfg.APIKey != "" {
		protected.Use(AuthMiddleware(cfg.APIKey, logger))
	} else {
		logger.Warn("admin api running without authentication")
	}
	if cfg.Redis != nil && cfg.RateLimit > 0 {
		protected.Use(RateLimitMiddleware(cfg.Redis, cfg.RateLimit, time.Minute, logger))
	}
	NewServer(deps).RegisterRoutes(protected)
	return router
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger = logging.For(logger, "api")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting admin api server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin api server: %w", err)
	}
	return nil
}
