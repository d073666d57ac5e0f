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
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices/{id}", func(r chi.Router) {
				r.Use(uuidParam("id", "device"))

				r.Get("/state", s.handleGetDeviceState)
				r.Put("/state", s.handleUpdateDeviceState)
				r.Post("/ping", s.handlePingDevice)
				r.Post("/process-queue", s.handleProcessQueue)

				r.Route("/commands", func(r chi.Router) {
					r.Get("/", s.handleListCommands)
					r.Post("/", s.handleSubmitCommand)
					r.Get("/history", s.handleCommandHistory)

					r.Route("/{cid}", func(r chi.Router) {
						r.Use(uuidParam("cid", "command"))
						r.Get("/", s.handleGetCommand)
						r.Delete("/", s.handleCancelCommand)
					})
				})
			})

			r.Route("/cleanup", func(r chi.Router) {
				r.With(uuidParam("id", "device")).Delete("/device/{id}", s.handleCleanupDevice)
				r.Post("/expired-commands", s.handleCleanupExpired)
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
