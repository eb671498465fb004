// Package audit keeps the trail of characteristic writes in the local store
// and serves it to the API.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcomes of a recorded command.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one characteristic write, successful or not.
type Entry struct {
	ID             string    `json:"id"`
	AccessoryID    string    `json:"accessory_id"`
	Characteristic string    `json:"characteristic"`
	Value          any       `json:"value,omitempty"`
	Source         string    `json:"source"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter selects entries for List. Empty fields match everything.
type Filter struct {
	AccessoryID    string
	Characteristic string
	Source         string
	Outcome        string
	Since          time.Time
	Limit          int
	Offset         int
}

// Page is one page of List results, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*Page, error)
}

// SQLiteRepository keeps entries in the command_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository on a migrated store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}

	var value sql.NullString
	if e.Value != nil {
		b, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encoding audit value: %w", err)
		}
		value = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit
		   (id, accessory_id, characteristic, value, source, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccessoryID, e.Characteristic, value, e.Source, e.Outcome,
		sql.NullString{String: e.Error, Valid: e.Error != ""},
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns the entries matching f, newest first. Limit is clamped to
// 1..MaxLimit with DefaultLimit for zero.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*Page, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	f.Offset = max(f.Offset, 0)

	where, args := f.where()

	var total int
	//nolint:gosec // where holds only fixed column predicates with placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_audit"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // where holds only fixed column predicates with placeholders
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, accessory_id, characteristic, value, source, outcome, error, created_at
		   FROM command_audit`+where+`
		  ORDER BY created_at DESC, id
		  LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	page := &Page{Entries: []Entry{}, Total: total, Limit: f.Limit, Offset: f.Offset}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return page, nil
}

// Prune deletes entries created before cutoff and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_audit WHERE created_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	return res.RowsAffected()
}

func (f Filter) where() (string, []any) {
	var preds []string
	var args []any
	add := func(pred string, arg any) {
		preds = append(preds, pred)
		args = append(args, arg)
	}

	if f.AccessoryID != "" {
		add("accessory_id = ?", f.AccessoryID)
	}
	if f.Characteristic != "" {
		add("characteristic = ?", f.Characteristic)
	}
	if f.Source != "" {
		add("source = ?", f.Source)
	}
	if f.Outcome != "" {
		add("outcome = ?", f.Outcome)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC().Format(timeLayout))
	}

	if len(preds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(preds, " AND "), args
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		value, msg sql.NullString
		created    string
	)
	if err := rows.Scan(&e.ID, &e.AccessoryID, &e.Characteristic, &value,
		&e.Source, &e.Outcome, &msg, &created); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}

	if value.Valid {
		if err := json.Unmarshal([]byte(value.String), &e.Value); err != nil {
			return Entry{}, fmt.Errorf("decoding audit value of %s: %w", e.ID, err)
		}
	}
	e.Error = msg.String

	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp %q: %w", created, err)
	}
	e.CreatedAt = t
	return e, nil
}
