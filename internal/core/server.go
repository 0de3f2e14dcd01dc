package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mindgarden/internal/config"
)

// RouteRegistrar mounts a group of handler routes on the router. Handlers
// register themselves through this indirection so core never imports the
// handler packages.
type RouteRegistrar func(r chi.Router)

// Server owns the router, the shared middleware chain, and the health
// probes. Domain handlers are mounted via RouteRegistrars.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer builds the router and applies the global middleware chain:
// Recoverer (outermost), Timeout, RequestID, RequestLogger.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}

	s.router.Use(Recoverer(logger))
	s.router.Use(Timeout(cfg.Server.RequestTimeout))
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(logger))

	return s, nil
}

// MountRoutes registers the health endpoint and all provided registrars.
func (s *Server) MountRoutes(registrars ...RouteRegistrar) {
	s.router.Get("/health", s.HandleHealth)
	for _, register := range registrars {
		register(s.router)
	}
}

// Handler returns the router as an http.Handler for ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
