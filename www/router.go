// Package www serves the monitor's JSON API and the prometheus endpoint.
package www

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meshmon/config"
	"meshmon/engine"
	"meshmon/logger"
	"meshmon/nodestate"
)

type Handlers struct {
	engine *engine.Engine
	nodes  *nodestate.Manager
}

func NewRouter(eng *engine.Engine, nodes *nodestate.Manager) http.Handler {
	h := &Handlers{engine: eng, nodes: nodes}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", h.apiHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/nodes", h.apiListNodes)
		r.Get("/nodes/{id}", h.apiGetNode)
		r.Get("/topology", h.apiTopology)
		r.Get("/sitrep", h.apiSitrep)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Server wraps http.Server with the configured bind address.
type Server struct {
	srv *http.Server
}

func NewServer(cfg config.WebConfig, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *Server) Start() {
	go func() {
		logger.Infof("www: listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("www: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
