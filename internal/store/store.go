// Package store provides SQLite-backed persistence for backlog items,
// sprints and risks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/antigravity-dev/tracker/internal/apperr"
)

// Store provides SQLite-backed persistence for tracker state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	acceptance_criteria TEXT NOT NULL DEFAULT '',
	item_type TEXT NOT NULL DEFAULT 'user_story',
	priority INTEGER NOT NULL DEFAULT 2,
	story_points INTEGER NOT NULL DEFAULT 0,
	parent_id TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	sprint_id TEXT,
	backlog_order INTEGER NOT NULL DEFAULT 0,
	assigned_to TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_project ON items(project, backlog_order);
CREATE INDEX IF NOT EXISTS idx_items_sprint ON items(sprint_id);
CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id);

CREATE TABLE IF NOT EXISTS sprints (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	name TEXT NOT NULL,
	goal TEXT NOT NULL DEFAULT '',
	sprint_number INTEGER NOT NULL DEFAULT 0,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'planned',
	committed_story_points INTEGER NOT NULL DEFAULT 0,
	completed_story_points INTEGER NOT NULL DEFAULT 0,
	scope_creep_story_points INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sprints_project ON sprints(project, sprint_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sprints_one_active ON sprints(project) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS risks (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	sprint_id TEXT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'technical',
	probability INTEGER NOT NULL DEFAULT 0,
	impact TEXT NOT NULL DEFAULT 'medium',
	response_strategy TEXT NOT NULL DEFAULT 'mitigate',
	response_plan TEXT NOT NULL DEFAULT '',
	mitigation_plan TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'identified',
	owner TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risks_project ON risks(project);
`

// Open opens (or creates) the SQLite database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	// SQLite allows a single writer; one connection keeps transactions
	// from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(sanitizeContext(ctx))
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(sanitizeContext(ctx), nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// updateField is one SET clause of a partial update.
type updateField struct {
	column string
	value  any
}

// execUpdate runs UPDATE table SET ... WHERE id = ? and reports not-found
// when no row matched.
func execUpdate(ctx context.Context, db execer, table, kind, id string, assignments []updateField) error {
	setClauses := make([]string, len(assignments))
	args := make([]any, 0, len(assignments)+2)
	for i := range assignments {
		setClauses[i] = fmt.Sprintf("%s = ?", assignments[i].column)
		args = append(args, assignments[i].value)
	}
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = ? WHERE id = ?;", table, strings.Join(setClauses, ", "))
	result, err := db.ExecContext(sanitizeContext(ctx), query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperr.Conflict("update %s %q: %v", kind, id, err)
		}
		return fmt.Errorf("store: update %s: %w", kind, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update %s: %w", kind, err)
	}
	if affected == 0 {
		return apperr.NotFound(kind, id)
	}
	return nil
}

func sanitizeContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func placeholders(count int) string {
	if count == 0 {
		return ""
	}
	values := make([]string, count)
	for i := range values {
		values[i] = "?"
	}
	return strings.Join(values, ", ")
}

// nullIfEmpty stores blank relational ids as NULL.
func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func coerceString(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

func coerceInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("value is not an integer: %v", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("value is not an integer: %T", value)
	}
}

func coerceTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	default:
		return time.Time{}, fmt.Errorf("value is not a date: %T", value)
	}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(kind, id)
	}
	return fmt.Errorf("store: get %s %q: %w", kind, id, err)
}
