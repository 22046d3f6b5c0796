// Package server exposes the retrieval assembler over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-vecrag/llm"
	"github.com/hubenschmidt/go-vecrag/retrieval"
	"github.com/hubenschmidt/go-vecrag/tools"
)

// Config configures a new Server instance.
type Config struct {
	Assembler *retrieval.Assembler
	Generator llm.Generator   // Optional: enables the ask route
	Registry  *tools.Registry // Optional: enables the tool routes

	// DefaultDimension is used when an ensure request omits the dimension.
	DefaultDimension int

	Gatherer prometheus.Gatherer // Optional: defaults to the global registry
	Logger   *zap.Logger
	RunLimit int // Optional: number of indexing runs kept for /runs
}

// Server is an HTTP server for indexing and retrieval.
type Server struct {
	assembler *retrieval.Assembler
	generator llm.Generator
	registry  *tools.Registry
	dimension int
	gatherer  prometheus.Gatherer
	log       *zap.Logger
	runs      *RunStore
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Assembler == nil {
		return nil, errors.New("server: assembler is required")
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		assembler: cfg.Assembler,
		generator: cfg.Generator,
		registry:  cfg.Registry,
		dimension: cfg.DefaultDimension,
		gatherer:  gatherer,
		log:       logger,
		runs:      newRunStore(cfg.RunLimit),
	}, nil
}

// Handler returns an http.Handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("PUT /collections/{name}", s.handleEnsure)
	mux.HandleFunc("GET /collections/{name}/count", s.handleCount)
	mux.HandleFunc("POST /collections/{name}/documents", s.handleIndex)
	mux.HandleFunc("POST /collections/{name}/search", s.handleSearch)
	mux.HandleFunc("POST /collections/{name}/context", s.handleContext)
	mux.HandleFunc("POST /collections/{name}/ask", s.handleAsk)

	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("POST /tools/{name}", s.handleToolCall)

	mux.HandleFunc("GET /runs", s.handleRunList)
	mux.HandleFunc("GET /runs/{id}", s.handleRunGet)

	return requestIDMiddleware(s.logMiddleware(corsMiddleware(mux)))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
