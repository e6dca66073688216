package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"helparo/internal/handler"
	"helparo/internal/httputil"
	"helparo/internal/model"
	authmw "helparo/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	RequestHandler      *handler.RequestHandler
	MatcherHandler      *handler.MatcherHandler
	NotificationHandler *handler.NotificationHandler
	PushHandler         *handler.PushHandler
	JWTSecret           string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public: the poll endpoint and the native shell's token registration
	// both run before a session is available.
	r.Get("/requests/{id}/status", cfg.RequestHandler.GetStatus)
	r.Post("/push/register", cfg.PushHandler.Register)

	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/requests/{id}/assign", cfg.RequestHandler.Assign)
		r.Post("/requests/{id}/complete", cfg.RequestHandler.Complete)
		r.Post("/requests/{id}/cancel", cfg.RequestHandler.Cancel)

		r.Post("/devices/token", cfg.NotificationHandler.RegisterDevice)

		r.Route("/notifications", func(r chi.Router) {
			r.Put("/preferences", cfg.NotificationHandler.SetPreference)
			r.Post("/{id}/read", cfg.NotificationHandler.MarkRead)
		})

		// Matcher callbacks
		r.Route("/internal/requests/{id}", func(r chi.Router) {
			r.Use(authmw.RequireRole(model.RoleServiceRole))
			r.Post("/broadcast", cfg.MatcherHandler.Broadcast)
			r.Post("/accept", cfg.MatcherHandler.Accept)
			r.Post("/expire", cfg.MatcherHandler.Expire)
		})
	})

	return r
}
