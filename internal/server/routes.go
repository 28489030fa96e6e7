package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/prompts/parse", s.prompts.Parse)
		r.Post("/schemas/validate", s.prompts.ValidateSchema)
		r.Post("/templates/render", s.prompts.RenderTemplate)

		r.Get("/prompts", s.prompts.ListPrompts)
		r.Get("/prompts/{name}", s.prompts.GetPrompt)
		r.Post("/prompts/{name}/render", s.prompts.RenderPrompt)
		r.Post("/prompts/{name}/validate-output", s.prompts.ValidateOutput)
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal handler when an admin token
// is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no PROMPTC_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.adminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
