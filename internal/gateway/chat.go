package gateway

import (
	"errors"
	"net/http"

	"github.com/nudgeme/nudgeme/internal/assistant"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/security"
)

// chatRequest is the body of POST /api/chat. An empty SessionID sends to
// the active session, creating one if needed.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.assistant == nil {
			unavailable(w, "assistant")
			return
		}
		var req chatRequest
		if !g.decode(w, r, &req) {
			return
		}
		if !g.allow(w, r, security.KindChat) {
			return
		}

		var (
			reply assistant.Reply
			err   error
		)
		if req.SessionID == "" {
			reply, err = g.assistant.Send(r.Context(), req.Message)
		} else {
			reply, err = g.assistant.SendTo(r.Context(), req.SessionID, req.Message)
		}
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, reply)
		case errors.Is(err, assistant.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, conversation.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			g.logger.Error("chat turn failed", "error", err)
			writeError(w, http.StatusInternalServerError, "chat turn failed")
		}
	}
}
