// Package api exposes reconciliation over HTTP.
//
// Routes:
//
//	POST /api/v1/reconcile   reconcile two posted transaction lists
//	GET  /api/v1/rates       resolve one historical exchange rate
//	GET  /api/v1/currencies  list supported reporting currencies
//	GET  /healthz            liveness
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/parsers"
	"fuzzy-reconciliation-service/internal/reconciler"
	recerrors "fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// RateResolver resolves a single exchange rate.
type RateResolver interface {
	Rate(ctx context.Context, date time.Time, from, to string) (models.FXRate, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	// RequestTimeout bounds a single reconcile or rate request.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		RequestTimeout:  2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    32 << 20,
	}
}

// Validate validates the server configuration
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Server serves the reconciliation API.
type Server struct {
	service *reconciler.Service
	loader  *parsers.Loader
	rates   RateResolver
	config  Config
	logger  logger.Logger
	router  *gin.Engine
}

// NewServer builds the router. rates may be nil, in which case the rates
// endpoint answers 503.
func NewServer(service *reconciler.Service, loader *parsers.Loader, rates RateResolver, config Config, log logger.Logger) (*Server, error) {
	if service == nil {
		return nil, recerrors.ConfigurationError(recerrors.CodeMissingConfig, "reconciliation_service", nil, nil)
	}
	if loader == nil {
		return nil, recerrors.ConfigurationError(recerrors.CodeMissingConfig, "loader", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, recerrors.ConfigurationError(recerrors.CodeInvalidConfig, "server", config.Addr, err)
	}

	s := &Server{
		service: service,
		loader:  loader,
		rates:   rates,
		config:  config,
		logger:  logger.OrGlobal(log).WithComponent("api"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger("/healthz"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", s.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reconcile", s.reconcile)
		v1.GET("/rates", s.rate)
		v1.GET("/currencies", s.currencies)
	}

	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.config.Addr).Info("Starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return recerrors.NetworkError(recerrors.CodeConnectionFailed, s.config.Addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs one line per request, skipping the given paths.
func (s *Server) requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if skipped[c.Request.URL.Path] {
			return
		}
		fields := logger.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			s.logger.WithFields(fields).WithError(c.Errors.Last()).Warn("Request failed")
			return
		}
		s.logger.WithFields(fields).Debug("Request served")
	}
}
