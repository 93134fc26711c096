package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"igharvest/pkg/logger"
)

// NewRouter routes /metrics to g and answers /healthz
func NewRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", Handler(g))
	return r
}

// Server serves NewRouter on a listen address for the duration of a run
type Server struct {
	srv    *http.Server
	logger logger.Logger
}

// NewServer builds a server for addr; it does not listen until Start
func NewServer(addr string, g prometheus.Gatherer, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(g),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.OrNop(log).WithField("component", "metrics"),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("address", ln.Addr().String()).Info("Serving metrics")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops the server, waiting for open scrapes up to ctx's deadline
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
