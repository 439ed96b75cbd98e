package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photo-dedup/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1/analysis", func(r chi.Router) {
		// Event stream lives as long as the run.
		r.Get("/events", s.analysis.Events)

		r.Group(func(r chi.Router) {
			// Loading an album from PhotoPrism can take a while.
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			r.Post("/", s.analysis.Start)
			r.Get("/", s.analysis.Status)
			r.Delete("/", s.analysis.Cancel)
			r.Post("/clear", s.analysis.Clear)
			r.Get("/groups/{photoId}", s.analysis.Group)
			r.Get("/scores/{a}/{b}", s.analysis.Score)
		})
	})
}
