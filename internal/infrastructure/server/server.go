package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/integral/internal/infrastructure/monitoring"
)

// Server exposes a coordinator's progress over HTTP:
//
//	GET /health   liveness and run identity
//	GET /status   monitoring.Progress as JSON
//	GET /metrics  Prometheus exposition
type Server struct {
	router  *gin.Engine
	http    *http.Server
	metrics *monitoring.Metrics
	logger  *zap.Logger
	started time.Time
}

// New creates a status server for metrics with the default rate limit.
func New(metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	return NewWithLimit(metrics, logger, DefaultRateLimitConfig())
}

// NewWithLimit creates a status server answering at most limit requests.
func NewWithLimit(metrics *monitoring.Metrics, logger *zap.Logger, limit RateLimitConfig) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(RateLimit(limit))

	s := &Server{
		router:  router,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
	s.http = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	router.GET("/health", s.health)
	router.GET("/status", s.status)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve serves on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Status server listening", zap.String("addr", lis.Addr().String()))
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	p := s.metrics.Progress()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"run_id": p.RunID,
		"phase":  p.Phase,
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Progress())
}
