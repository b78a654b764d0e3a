/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/events/*         Event CRUD and search
  /api/calendar/*       Day, week, month and summary views
  /api/slots            Hourly slot labels
  /api/export.ics       ICS export
  /api/import           ICS import
  /api/stream           WebSocket snapshots
  /api/scenarios/*      Demo scenarios
  /api/admin/backup     Backup status and manual run
  /health               Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public; bind to
  localhost unless fronted by a proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - stream.go: WebSocket handler
  - cmd/server/main.go: Server startup
*/
package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !containsWildcard(h.origins()),
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Get("/search", h.SearchEvents)
			r.Get("/{id}", h.GetEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
		})

		r.Route("/calendar", func(r chi.Router) {
			r.Get("/day/{year}/{month}/{day}", h.DayView)
			r.Get("/week/{year}/{month}/{day}", h.WeekView)
			r.Get("/month/{year}/{month}", h.MonthView)
			r.Get("/summary", h.Summary)
		})

		r.Get("/slots", h.Slots)
		r.Get("/export.ics", h.ExportICS)
		r.Post("/import", h.ImportICS)
		r.Get("/stream", h.Stream)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/backup", h.BackupStatus)
			r.Post("/backup", h.TriggerBackup)
		})
	})

	return r
}

func (h *Handler) origins() []string {
	if len(h.AllowedOrigins) == 0 {
		return defaultOrigins
	}
	return h.AllowedOrigins
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func originAllowed(origins []string, origin string) bool {
	for _, o := range origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
