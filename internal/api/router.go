package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/audit", s.handleAudit)

		r.Route("/plan", func(r chi.Router) {
			r.Post("/", s.handleCreatePlan)
			r.Get("/", s.handleGetPlan)
		})

		r.Post("/apply", s.handleApply)

		r.Route("/rollback", func(r chi.Router) {
			r.Post("/", s.handleRollback)
			r.Get("/", s.handleGetRollback)
		})

		r.Route("/ignore", func(r chi.Router) {
			r.Get("/", s.handleListIgnored)
			r.Post("/", s.handleIgnore)
			r.Delete("/", s.handleUnignore)
			r.Post("/clear", s.handleClearIgnored)
		})

		r.Get("/history", s.handleHistory)
	})

	return r
}
