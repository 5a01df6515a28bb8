package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nudgeme/nudgeme/internal/cron"
	"github.com/nudgeme/nudgeme/internal/security"
)

// handleRunJob runs a scheduled job immediately, e.g. nudge_timed to tick
// the engine without waiting for the next minute.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.jobs == nil {
			unavailable(w, "scheduler")
			return
		}
		if !g.allow(w, r, security.KindTrigger) {
			return
		}
		name := chi.URLParam(r, "name")
		err := g.jobs.RunNow(r.Context(), name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, cron.ErrJobBusy):
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		detail := "ok"
		if err != nil {
			detail = err.Error()
		}
		g.auditEvent(r, security.EventJobRun, name, detail)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
	}
}
