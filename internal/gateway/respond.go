package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nudgeme/nudgeme/internal/security"
)

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// unavailable answers routes whose backing service is not wired.
func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not available")
}

// decode reads a size- and depth-limited JSON body into v and writes the
// error response itself. It reports whether decoding succeeded.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := security.DecodeJSON(r.Body, g.config.MaxBodySize, v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, security.ErrBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
	return false
}

// auditEvent records an audit entry tagged with the caller's address.
func (g *Gateway) auditEvent(r *http.Request, typ security.EventType, target, detail string) {
	g.audit.Log(security.AuditEvent{
		Type:   typ,
		Remote: r.RemoteAddr,
		Target: target,
		Detail: detail,
	})
}

// allow applies the rate limit for kind and answers 429 when exceeded.
func (g *Gateway) allow(w http.ResponseWriter, r *http.Request, kind string) bool {
	if g.limiter == nil {
		return true
	}
	if err := g.limiter.Allow(kind); err != nil {
		g.auditEvent(r, security.EventRateLimit, kind, "")
		writeError(w, http.StatusTooManyRequests, err.Error())
		return false
	}
	return true
}
