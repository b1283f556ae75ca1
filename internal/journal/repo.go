package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS desk_journal (
	id          UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	page        TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	visitor_id  TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS desk_journal_visitor_idx ON desk_journal (visitor_id, occurred_at DESC);
`

// Repository persists journal entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Insert writes one entry.
func (r *Repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	e = prepare(e)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO desk_journal (id, occurred_at, page, actor, action, visitor_id, result, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.At, e.Page, e.Actor, e.Action, e.VisitorID, e.Result, e.Detail)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// List returns matching entries newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := listQuery(f.normalized())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.Page, &e.Actor, &e.Action, &e.VisitorID, &e.Result, &e.Detail); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func listQuery(f Filter) (string, []any) {
	query := `SELECT id, occurred_at, page, actor, action, visitor_id, result, detail FROM desk_journal`
	var (
		args    []any
		clauses []string
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("page", f.Page)
	add("visitor_id", f.VisitorID)
	add("action", f.Action)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return query, args
}
