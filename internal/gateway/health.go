package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Uptime   string `json:"uptime"`
	Engine   bool   `json:"engine_running"`
	Memories int    `json:"memories"`
	Sessions int    `json:"sessions"`
	// Unsaved lists stores holding changes that failed to persist.
	Unsaved []string `json:"unsaved,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 503 while a store has unpersisted changes.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Truncate(time.Second).String(),
		}

		if g.engine != nil {
			resp.Engine = g.engine.Running()
		}
		if g.memories != nil {
			resp.Memories = g.memories.Count()
			if g.memories.Dirty() {
				resp.Unsaved = append(resp.Unsaved, "memory")
			}
		}
		if g.conversations != nil {
			resp.Sessions = g.conversations.Count()
			if g.conversations.Dirty() {
				resp.Unsaved = append(resp.Unsaved, "conversation")
			}
		}

		status := http.StatusOK
		if len(resp.Unsaved) > 0 {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
