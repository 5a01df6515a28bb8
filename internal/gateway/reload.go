package gateway

import (
	"net/http"
)

// handleReloadConfig re-reads the configuration file and applies it.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reloader == nil {
			unavailable(w, "config reload")
			return
		}
		if err := g.reloader.Reload(r.Context()); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
