// Package api wires the HTTP surface together: middleware stack, the
// pull-transport REST routes, the websocket endpoint and the operational
// endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/api/middleware"
	"github.com/flalad/chat-room/internal/auth"
	"github.com/flalad/chat-room/internal/config"
	"github.com/flalad/chat-room/internal/handlers"
	"github.com/flalad/chat-room/internal/hub"
	"github.com/flalad/chat-room/internal/store"
	"github.com/flalad/chat-room/internal/ws"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *hub.Hub, st store.MessageStore, issuer *auth.TokenIssuer) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(logger)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	hh := handlers.NewHandler(h, issuer, st, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Push transport
	r.Handle("/ws", ws.NewHandler(h, cfg, logger))

	// Operational endpoints
	r.Get("/", hh.Root)
	r.Get("/health", hh.Health)

	// Pull transport
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat/join", hh.Join)
		r.Post("/chat/leave", hh.Leave)
		r.Post("/messages/send", hh.Send)
		r.Get("/messages/poll", hh.Poll)
		r.Get("/messages/history", hh.History)
		r.Delete("/messages", hh.Purge)
		r.Get("/users/online", hh.Users)
	})

	return r
}
