package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nudgeme/nudgeme/internal/mcpserver"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.instrument)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Get("/metrics", g.handleMetrics())

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}

		r.Get("/ws/events", g.handleEvents())

		if g.mcp != nil {
			r.Handle("/mcp", mcpserver.HTTPHandler(g.mcp))
		}

		r.Route("/api", func(r chi.Router) {
			r.Route("/nudges", func(r chi.Router) {
				r.Get("/current", g.handleCurrentNudge())
				r.Post("/trigger", g.handleTriggerNudge())
				r.Post("/{id}/accept", g.handleAcceptNudge())
				r.Post("/{id}/dismiss", g.handleDismissNudge())
			})

			r.Get("/rules", g.handleListRules())
			r.Put("/rules/{id}", g.handleSetRule())

			r.Get("/memories", g.handleListMemories())
			r.Post("/memories", g.handleAddMemory())
			r.Delete("/memories", g.handleClearMemories())
			r.Delete("/memories/{id}", g.handleDeleteMemory())

			r.Get("/sessions", g.handleListSessions())
			r.Post("/sessions", g.handleCreateSession())
			r.Delete("/sessions", g.handleClearSessions())
			r.Get("/sessions/{id}", g.handleGetSession())
			r.Delete("/sessions/{id}", g.handleDeleteSession())
			r.Post("/sessions/{id}/activate", g.handleActivateSession())

			r.Post("/chat", g.handleChat())

			r.Post("/config/reload", g.handleReloadConfig())
			r.Post("/jobs/{name}/run", g.handleRunJob())
		})
	})

	return r
}
