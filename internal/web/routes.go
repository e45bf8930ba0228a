package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/web/handlers"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	enrollHandler := handlers.NewEnrollHandler(s.deps.Engine, s.logger)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Engine, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Engine, s.logger)
	statsHandler := handlers.NewStatsHandler(s.deps.Engine, s.logger)
	auditHandler := handlers.NewAuditHandler(s.deps.Store, s.deps.Searcher, s.deps.Threshold, s.logger)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.APIToken))
			r.Use(middleware.RateLimit(s.config.RateLimit))

			// Enrollment
			r.Post("/enroll", enrollHandler.Enroll)

			// Recognition
			r.Post("/recognize", recognizeHandler.Recognize)
			r.Post("/recognize/verified", recognizeHandler.Verified)
			r.Delete("/recognize/verified/{session}", recognizeHandler.ResetSession)

			// Identities and embeddings
			r.Delete("/identities/{id}", identitiesHandler.Deactivate)
			r.Get("/identities/{id}/embeddings/count", identitiesHandler.CountEmbeddings)
			r.Delete("/embeddings/{id}", identitiesHandler.RevokeEmbedding)

			// Stats
			r.Get("/stats", statsHandler.Get)

			// Audit
			r.Get("/audit/conflicts", auditHandler.Conflicts)
		})
	})
}
