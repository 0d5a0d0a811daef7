package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Readiness reports whether the relay can serve traffic
type Readiness interface {
	Healthy() bool
}

// Routes holds the handlers the server mounts. Nil handlers are not mounted.
type Routes struct {
	FeishuWebhook   http.Handler
	TelegramWebhook http.Handler
	API             http.Handler
	Readiness       Readiness
}

// Server is the relay's HTTP front door: platform webhooks, health,
// metrics and the admin API
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer creates a new HTTP server listening on addr
func NewServer(addr string, routes Routes, log zerolog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(routes, log),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Telegram webhooks wait for the whole reply cycle
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// NewRouter builds the chi router for routes
func NewRouter(routes Routes, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(requestMetrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if routes.Readiness != nil && !routes.Readiness.Healthy() {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if routes.FeishuWebhook != nil {
		r.Method(http.MethodPost, "/webhooks/feishu", routes.FeishuWebhook)
	}
	if routes.TelegramWebhook != nil {
		r.Method(http.MethodPost, "/webhooks/telegram", routes.TelegramWebhook)
	}
	if routes.API != nil {
		r.Mount("/api", routes.API)
	}
	return r
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
