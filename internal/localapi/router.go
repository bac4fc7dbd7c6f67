package localapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
)

func NewRouter(api *API, corsOrigins []string) http.Handler {
	origins := newOriginPolicy(corsOrigins)
	api.hub.AllowOrigins(origins.allows)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(logRequests)
	r.Use(origins.middleware)

	r.Get("/health", api.HandleHealth)
	r.Route("/attempt", func(r chi.Router) {
		r.Get("/", api.HandleGetAttempt)
		r.Get("/ws", api.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.AllowContentType("application/json"))
			r.Post("/", api.HandleOpenAttempt)
			r.Put("/answers/{index}", api.HandleAnswer)
			r.Put("/current", api.HandleSetCurrent)
			r.Post("/submit", api.HandleSubmit)
		})
	})

	if len(corsOrigins) == 0 {
		return r
	}
	return handlers.CORS(
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}
