package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/security"
)

// SessionsResponse is the JSON response for GET /api/sessions.
type SessionsResponse struct {
	Active   string                 `json:"active,omitempty"`
	Sessions []conversation.Session `json:"sessions"`
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.conversations == nil {
			unavailable(w, "conversation store")
			return
		}
		resp := SessionsResponse{Sessions: g.conversations.ListSessions()}
		if active, ok := g.conversations.Active(); ok {
			resp.Active = active.ID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// createSessionRequest is the optional body of POST /api/sessions.
type createSessionRequest struct {
	Title string `json:"title"`
}

func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.conversations == nil {
			unavailable(w, "conversation store")
			return
		}
		var req createSessionRequest
		if r.ContentLength != 0 && !g.decode(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusCreated, g.conversations.CreateSession(req.Title))
	}
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.conversations == nil {
			unavailable(w, "conversation store")
			return
		}
		sess, err := g.conversations.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (g *Gateway) handleActivateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.conversations == nil {
			unavailable(w, "conversation store")
			return
		}
		id := chi.URLParam(r, "id")
		if err := g.conversations.SetActive(id); err != nil {
			writeSessionError(w, err)
			return
		}
		sess, err := g.conversations.Get(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.conversations == nil {
			unavailable(w, "conversation store")
			return
		}
		id := chi.URLParam(r, "id")
		if err := g.conversations.DeleteSession(id); err != nil {
			writeSessionError(w, err)
			return
		}
		g.auditEvent(r, security.EventSessionDelete, id, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleClearSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.conversations == nil {
			unavailable(w, "conversation store")
			return
		}
		n := g.conversations.Count()
		g.conversations.ClearAll()
		g.auditEvent(r, security.EventSessionsClear, "", strconv.Itoa(n)+" sessions")
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
