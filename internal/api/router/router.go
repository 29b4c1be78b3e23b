package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/padel-booking-bot/internal/http/middleware"
	"github.com/wolfman30/padel-booking-bot/internal/messaging"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	MetricsHandler   http.Handler
	// WebhookLimiter throttles POST /webhook per client IP. Nil disables it.
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.MessagingHandler == nil {
		panic("router: messaging handler cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/", cfg.MessagingHandler.Root)
	r.Get("/health", cfg.MessagingHandler.Health)
	r.Route("/webhook", func(wh chi.Router) {
		wh.Get("/", cfg.MessagingHandler.WebhookStatus)
		if cfg.WebhookLimiter != nil {
			wh.With(httpmiddleware.RateLimit(cfg.WebhookLimiter, logger)).Post("/", cfg.MessagingHandler.Webhook)
		} else {
			wh.Post("/", cfg.MessagingHandler.Webhook)
		}
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	return r
}
