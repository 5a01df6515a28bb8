package gateway

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/security"
)

// handleListMemories serves GET /api/memories?category=&tag=&q=&limit=.
func (g *Gateway) handleListMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memories == nil {
			unavailable(w, "memory store")
			return
		}
		q := r.URL.Query()
		f := memory.Filter{
			Tag:   q.Get("tag"),
			Query: q.Get("q"),
		}
		if c := q.Get("category"); c != "" {
			cat := memory.Category(strings.ToLower(c))
			if !slices.Contains(memory.Categories, cat) {
				writeError(w, http.StatusBadRequest, "unknown category: "+c)
				return
			}
			f.Category = cat
		}
		if l := q.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			f.Limit = n
		}

		records := g.memories.List(r.Context(), f)
		if records == nil {
			records = []memory.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// addMemoryRequest is the body of POST /api/memories.
type addMemoryRequest struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (g *Gateway) handleAddMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memories == nil {
			unavailable(w, "memory store")
			return
		}
		var req addMemoryRequest
		if !g.decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeError(w, http.StatusBadRequest, `"content" is required`)
			return
		}
		rec := g.memories.Append(r.Context(), req.Content, memory.ParseCategory(req.Category), req.Tags)
		writeJSON(w, http.StatusCreated, rec)
	}
}

func (g *Gateway) handleDeleteMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memories == nil {
			unavailable(w, "memory store")
			return
		}
		id := chi.URLParam(r, "id")
		if err := g.memories.Delete(r.Context(), id); err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.auditEvent(r, security.EventMemoryDelete, id, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleClearMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memories == nil {
			unavailable(w, "memory store")
			return
		}
		n := g.memories.Count()
		g.memories.Clear(r.Context())
		g.auditEvent(r, security.EventMemoryClear, "", strconv.Itoa(n)+" records")
		w.WriteHeader(http.StatusNoContent)
	}
}
