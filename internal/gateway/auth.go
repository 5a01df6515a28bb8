package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/nudgeme/nudgeme/internal/security"
)

// authMiddleware validates Bearer token or Basic auth credentials using
// constant-time comparison. Failures are written to the audit log.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitAuthFailure(audit, r, "missing authorization header")
				unauthorized(w, cfg)
				return
			}

			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, cfg.BearerToken) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				userOK := constantTimeEqual(user, cfg.BasicUser)
				passOK := constantTimeEqual(pass, cfg.BasicPass)
				if ok && userOK && passOK {
					next.ServeHTTP(w, r)
					return
				}
			}

			emitAuthFailure(audit, r, "invalid credentials")
			unauthorized(w, cfg)
		})
	}
}

func unauthorized(w http.ResponseWriter, cfg AuthConfig) {
	if cfg.BasicUser != "" {
		w.Header().Set("WWW-Authenticate", `Basic realm="nudgeme"`)
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func emitAuthFailure(audit *security.AuditLogger, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:   security.EventAuthFailure,
		Remote: r.RemoteAddr,
		Target: r.Method + " " + r.URL.Path,
		Detail: detail,
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
