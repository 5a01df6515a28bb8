package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/security"
)

func TestMemories_AddListFilter(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	adds := []string{
		`{"content":"Dentist on Friday","category":"health","tags":["appointments"]}`,
		`{"content":"Prefers green tea","category":"preferences"}`,
		`{"content":"Quarterly review","category":"WORK","tags":["Review"]}`,
	}
	for _, body := range adds {
		if status, resp := env.do(t, http.MethodPost, "/api/memories", body); status != http.StatusCreated {
			t.Fatalf("add = %d (%s)", status, resp)
		}
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "all newest first", query: "", want: []string{"Quarterly review", "Prefers green tea", "Dentist on Friday"}},
		{name: "category", query: "?category=health", want: []string{"Dentist on Friday"}},
		{name: "tag case-insensitive", query: "?tag=REVIEW", want: []string{"Quarterly review"}},
		{name: "query", query: "?q=TEA", want: []string{"Prefers green tea"}},
		{name: "limit", query: "?limit=1", want: []string{"Quarterly review"}},
		{name: "no match", query: "?q=zebra", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodGet, "/api/memories"+tt.query, "")
			if status != http.StatusOK {
				t.Fatalf("status = %d (%s)", status, body)
			}
			var recs []memory.Record
			if err := json.Unmarshal(body, &recs); err != nil {
				t.Fatal(err)
			}
			if len(recs) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(recs), len(tt.want))
			}
			for i, r := range recs {
				if r.Content != tt.want[i] {
					t.Errorf("record %d = %q, want %q", i, r.Content, tt.want[i])
				}
			}
		})
	}
}

func TestMemories_UnknownCategoryStoredAsGeneral(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/memories", `{"content":"Likes jazz","category":"hobbies"}`)
	if status != http.StatusCreated {
		t.Fatalf("add = %d", status)
	}
	var rec memory.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Category != memory.CategoryGeneral {
		t.Errorf("category = %q, want general", rec.Category)
	}
}

func TestMemories_BadRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "empty content", method: http.MethodPost, path: "/api/memories", body: `{"content":"  "}`, want: http.StatusBadRequest},
		{name: "unknown filter category", method: http.MethodGet, path: "/api/memories?category=hobbies", want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/api/memories?limit=-1", want: http.StatusBadRequest},
		{name: "delete unknown", method: http.MethodDelete, path: "/api/memories/nope", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := env.do(t, tt.method, tt.path, tt.body); status != tt.want {
				t.Errorf("status = %d, want %d (%s)", status, tt.want, body)
			}
		})
	}
}

func TestMemories_BodyTooLarge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(g *Gateway) { g.config.MaxBodySize = 16 })

	status, _ := env.do(t, http.MethodPost, "/api/memories", `{"content":"this is longer than sixteen bytes"}`)
	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", status)
	}
}

func TestMemories_DeleteAndClear(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	first := env.gw.memories.Append(t.Context(), "one", memory.CategoryGeneral, nil)
	env.gw.memories.Append(t.Context(), "two", memory.CategoryGeneral, nil)

	if status, _ := env.do(t, http.MethodDelete, "/api/memories/"+first.ID, ""); status != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", status)
	}
	if got := env.gw.memories.Count(); got != 1 {
		t.Errorf("count after delete = %d, want 1", got)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/memories", ""); status != http.StatusNoContent {
		t.Fatalf("clear = %d, want 204", status)
	}
	if got := env.gw.memories.Count(); got != 0 {
		t.Errorf("count after clear = %d, want 0", got)
	}

	kinds := map[security.EventType]bool{}
	for _, ev := range env.audit() {
		kinds[ev.Type] = true
	}
	if !kinds[security.EventMemoryDelete] || !kinds[security.EventMemoryClear] {
		t.Errorf("audit events = %v, want memory_delete and memory_clear", kinds)
	}
}
