package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nudgeme/nudgeme/internal/nudge"
	"github.com/nudgeme/nudgeme/internal/security"
)

// handleCurrentNudge returns the pending notification, or 204 when there
// is none.
func (g *Gateway) handleCurrentNudge() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}
		n, ok := g.engine.Current()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func (g *Gateway) handleTriggerNudge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}
		if !g.allow(w, r, security.KindTrigger) {
			return
		}
		n := g.engine.TriggerManual(r.Context())
		g.auditEvent(r, security.EventNudgeTrigger, n.ID, string(n.Type))
		writeJSON(w, http.StatusCreated, n)
	}
}

func (g *Gateway) handleAcceptNudge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}
		n, err := g.engine.Accept(chi.URLParam(r, "id"))
		if err != nil {
			writeNudgeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func (g *Gateway) handleDismissNudge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}
		if err := g.engine.Dismiss(chi.URLParam(r, "id")); err != nil {
			writeNudgeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeNudgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, nudge.ErrNoNotification):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, nudge.ErrStaleNotification):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (g *Gateway) handleListRules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}
		writeJSON(w, http.StatusOK, g.engine.Rules())
	}
}

// setRuleRequest is the body of PUT /api/rules/{id}.
type setRuleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (g *Gateway) handleSetRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}
		var req setRuleRequest
		if !g.decode(w, r, &req) {
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, `"enabled" is required`)
			return
		}

		id := chi.URLParam(r, "id")
		if err := g.engine.SetEnabled(id, *req.Enabled); err != nil {
			if errors.Is(err, nudge.ErrUnknownRule) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.auditEvent(r, security.EventRuleToggle, id, "enabled="+strconv.FormatBool(*req.Enabled))

		for _, st := range g.engine.Rules() {
			if st.ID == id {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
