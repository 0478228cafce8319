package http

import (
	"context"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"microlearning-services/internal/infra/metrics"
)

// Server оборачивает http.Server с базовыми middlewares.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer создаёт HTTP сервер компонента: request id, логирование,
// восстановление после паник, метрики и таймауты уже подключены.
func NewServer(logger zerolog.Logger, component, addr string, handler http.Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.HTTPMiddleware(component))
	r.Mount("/", handler)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		log: logger,
	}
}

// Start запускает http.Server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("HTTP сервер запущен")
	return s.srv.ListenAndServe()
}

// Shutdown корректно завершает работу сервера.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
