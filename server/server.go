// Package server serves the device panel on a host over net/http.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"openenterprise/webota/panel"
	"openenterprise/webota/update"
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, ":80" if empty.
	Addr string
	// Metrics exposes GET /metrics.
	Metrics bool
}

// Server is the host HTTP front end for a panel and an update session.
type Server struct {
	panel   *panel.Panel
	session *update.Session
	logger  *slog.Logger
	opts    Options
	metrics *Metrics
	router  chi.Router

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// New builds the router. Nothing listens until Start.
func New(p *panel.Panel, s *update.Session, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":80"
	}
	srv := &Server{
		panel:   p,
		session: s,
		logger:  logger,
		opts:    opts,
	}
	if opts.Metrics {
		srv.metrics = NewMetrics(prometheus.NewRegistry())
		srv.metrics.Observe(s)
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handlePage())
	r.Get("/readout", s.handleReadout())
	r.Post("/update", s.handleUpdate())
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	r.Get("/{id}", s.handlePress())
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the collectors, nil unless Options.Metrics is set.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("server: already started")
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http:listening", slog.String("addr", ln.Addr().String()))
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http:serve-failed", slog.String("err", err.Error()))
		}
	}(s.srv)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("http:shutdown")
	return srv.Shutdown(ctx)
}
