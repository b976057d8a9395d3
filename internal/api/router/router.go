package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/contractor-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/contractor-booking/internal/http/middleware"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Wizard             *handlers.WizardHandler
	SessionTokens      httpmiddleware.TokenVerifier
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Demo, when set, is mounted at /demo (mock contractor API).
	Demo http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Demo != nil {
			public.Mount("/demo", cfg.Demo)
		}
	})

	// Embedding API. Session creation is open; everything below a session
	// requires the token issued at creation.
	if cfg.Wizard != nil {
		r.Route("/v1/wizard/sessions", func(api chi.Router) {
			if cfg.RateLimiter != nil {
				api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			cfg.Wizard.Routes(api, httpmiddleware.SessionAuth(cfg.SessionTokens, "id"))
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
