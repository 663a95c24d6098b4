package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Devices at the door are not users.
		r.Post("/intercoms/{intercomId}/access/verify", s.handleVerify)

		// Browsers cannot set headers on a WebSocket upgrade, so this
		// route authenticates itself.
		r.Get("/access/events/ws", s.handleAccessEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/intercoms/{intercomId}/access", func(r chi.Router) {
				r.Post("/master-pin", s.handleSetMasterPin)
				r.Post("/users/{userId}/pin", s.handleSetUserPin)
				r.Post("/pin/self", s.handleChangeOwnPin)
				r.Put("/me/pin", s.handleChangeOwnPin)
				r.Get("/logs", s.handleIntercomLogs)
			})

			r.Route("/access-codes", func(r chi.Router) {
				r.Get("/", s.handleListAccessCodes)
				r.Post("/", s.handleCreateAccessCode)

				r.Route("/{codeId}", func(r chi.Router) {
					r.Get("/", s.handleGetAccessCode)
					r.Put("/", s.handleUpdateAccessCode)
					r.Delete("/", s.handleDeleteAccessCode)
					r.Post("/deactivate", s.handleDeactivateAccessCode)
				})
			})

			r.Get("/access-logs", s.handleQueryLogs)
		})
	})

	return r
}
