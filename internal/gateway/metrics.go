package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// instrument counts every response by route pattern, so path parameters
// such as IDs do not create new label values.
func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.metrics.RequestServed(route, r.Method, status)
	})
}

// handleMetrics serves the prometheus registry, or 404 when telemetry is
// not wired.
func (g *Gateway) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.metrics == nil {
			http.NotFound(w, r)
			return
		}
		g.metrics.Handler().ServeHTTP(w, r)
	}
}
