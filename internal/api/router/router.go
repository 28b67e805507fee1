package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/consultia/clinic-agent/internal/http/handlers"
	httpmiddleware "github.com/consultia/clinic-agent/internal/http/middleware"
	"github.com/consultia/clinic-agent/internal/webchat"
	"github.com/consultia/clinic-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WebChat            *webchat.Handler
	WhatsApp           http.Handler
	Dashboard          *handlers.DashboardHandler
	StaffJWTSecret     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-client token bucket on the patient-facing channels; rate <= 0 disables it.
	PublicRateLimit float64
	PublicBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Patient channels
	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimit, cfg.PublicBurst))
		if cfg.WebChat != nil {
			public.Post("/chat", cfg.WebChat.HandleChat)
			public.Get("/chat/ws", cfg.WebChat.HandleWebSocket)
		}
	})

	// Twilio relays every patient from a handful of egress IPs.
	if cfg.WhatsApp != nil {
		r.With(httpmiddleware.SenderRateLimit(cfg.PublicRateLimit, cfg.PublicBurst, "From")).
			Method(http.MethodPost, "/whatsapp", cfg.WhatsApp)
	}

	if cfg.Dashboard != nil {
		r.Route("/api/dashboard", func(dash chi.Router) {
			dash.Post("/login", cfg.Dashboard.Login)
			dash.Group(func(staffOnly chi.Router) {
				staffOnly.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))
				staffOnly.Get("/config", cfg.Dashboard.Config)
				staffOnly.Get("/turnos", cfg.Dashboard.ListAppointments)
				staffOnly.Post("/turnos", cfg.Dashboard.CreateAppointment)
				staffOnly.Delete("/turnos/{id}", cfg.Dashboard.CancelAppointment)
				staffOnly.With(httpmiddleware.RequireAdmin).Post("/usuarios", cfg.Dashboard.CreateUser)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
