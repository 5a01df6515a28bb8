package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/nudgeme/nudgeme/internal/memory"
)

// Remote implements memory.Remote on a PostgreSQL table. The table is
// created on first use, so an unreachable server at startup only costs
// the reads and writes attempted while it is down.
type Remote struct {
	db    *sql.DB
	table string

	mu    sync.Mutex
	ready bool
}

// Compile-time interface check.
var _ memory.Remote = (*Remote)(nil)

// NewRemote wraps db. table must be a plain identifier.
func NewRemote(db *sql.DB, table string) *Remote {
	return &Remote{db: db, table: pq.QuoteIdentifier(table)}
}

// ensureSchema creates the table and its index once per process.
func (r *Remote) ensureSchema(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + r.table + ` (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			category   TEXT NOT NULL,
			tags       TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(strings.Trim(r.table, `"`)+"_created_at") +
			` ON ` + r.table + ` (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("memory.postgres: create schema: %w", err)
		}
	}
	r.ready = true
	return nil
}

// Insert implements memory.Remote. Re-inserting an id overwrites the row.
func (r *Remote) Insert(ctx context.Context, rec memory.Record) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	var updated sql.NullTime
	if rec.UpdatedAt != nil {
		updated = sql.NullTime{Time: *rec.UpdatedAt, Valid: true}
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, content, category, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   content = EXCLUDED.content, category = EXCLUDED.category,
		   tags = EXCLUDED.tags, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Content, string(rec.Category), pq.Array(tags), rec.CreatedAt, updated,
	)
	if err != nil {
		return fmt.Errorf("memory.postgres: insert %s: %w", rec.ID, err)
	}
	return nil
}

// Select implements memory.Remote.
func (r *Remote) Select(ctx context.Context, f memory.Filter) ([]memory.Record, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query, args := buildSelect(r.table, f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory.postgres: select: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []memory.Record
	for rows.Next() {
		var (
			rec      memory.Record
			category string
			tags     []string
			updated  sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &category, pq.Array(&tags), &rec.CreatedAt, &updated); err != nil {
			return nil, fmt.Errorf("memory.postgres: scan: %w", err)
		}
		rec.Category = memory.ParseCategory(category)
		if len(tags) > 0 {
			rec.Tags = tags
		}
		if updated.Valid {
			t := updated.Time
			rec.UpdatedAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory.postgres: select: %w", err)
	}
	return out, nil
}

// Delete implements memory.Remote.
func (r *Remote) Delete(ctx context.Context, id string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("memory.postgres: delete %s: %w", id, err)
	}
	return nil
}

// Clear implements memory.Remote.
func (r *Remote) Clear(ctx context.Context) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table); err != nil {
		return fmt.Errorf("memory.postgres: clear: %w", err)
	}
	return nil
}

// Ping checks connectivity within timeout.
func (r *Remote) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return err
	}
	return r.ensureSchema(ctx)
}

// buildSelect renders f as a parameterized query over table (already quoted).
// Matching mirrors memory.Filter.Match: category is exact, tag is
// case-insensitive equality, and query is a case-insensitive substring of
// the content or any tag.
func buildSelect(table string, f memory.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Category != "" {
		where = append(where, "category = "+arg(string(f.Category)))
	}
	if f.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE lower(t) = lower("+arg(f.Tag)+"))")
	}
	if f.Query != "" {
		p := arg("%" + escapeLike(f.Query) + "%")
		where = append(where, "(content ILIKE "+p+" OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE "+p+"))")
	}

	var b strings.Builder
	b.WriteString("SELECT id, content, category, tags, created_at, updated_at FROM ")
	b.WriteString(table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(arg(f.Limit))
	}
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
