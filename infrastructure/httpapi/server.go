// Package httpapi exposes prompt submission and the model registry over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

// ServiceName identifies the API in traces.
const ServiceName = "consensus-api"

// Submitter runs prompt submissions.
type Submitter interface {
	Submit(ctx context.Context, req application.SubmissionRequest) (*domain.Submission, error)
}

// Catalog manages the model registry.
type Catalog interface {
	List(ctx context.Context) ([]domain.Model, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.Model, error)
	Sync(ctx context.Context) ([]domain.Model, error)
}

// Server wires handlers onto a gin engine.
type Server struct {
	submitter Submitter
	catalog   Catalog
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	engine    *gin.Engine
}

// Option customises a Server.
type Option func(*Server)

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the router.
func NewServer(submitter Submitter, catalog Catalog, opts ...Option) *Server {
	s := &Server{
		submitter: submitter,
		catalog:   catalog,
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(ServiceName), s.accessLog())

	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api")
	api.POST("/prompt", s.submitPrompt)
	api.GET("/models", s.listModels)
	api.PUT("/models", s.setModelEnabled)
	api.POST("/models/sync", s.syncModels)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
