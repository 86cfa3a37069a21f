package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jharlow/foreman/pkg/models"
)

// SQLite is a local SQLite-backed issue tracker, the system of record for
// self-hosted operation. The engine still treats it strictly as an external
// collaborator: all engine state is reconstructed from it, never cached
// beside it.
type SQLite struct {
	conn *sql.DB
	path string
}

// Compile-time verification that SQLite implements the tracker interfaces.
var (
	_ IssueTracker     = (*SQLite)(nil)
	_ ItemReader       = (*SQLite)(nil)
	_ ResultWriter     = (*SQLite)(nil)
	_ CheckpointStore  = (*SQLite)(nil)
	_ AnnotationSource = (*SQLite)(nil)
)

// DefaultDBPath returns the path to the project-local tracker database.
func DefaultDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".foreman", "tracker.db")
}

// OpenSQLite opens (or creates) a tracker database at the given path.
// Parent directories are created if missing. WAL mode is enabled for
// concurrent reads.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create tracker directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tracker database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLite{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies the schema. Idempotent.
func (s *SQLite) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	children   TEXT NOT NULL DEFAULT '[]',
	footprint  TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	item_id    TEXT PRIMARY KEY REFERENCES items(id),
	ref        TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	marker     TEXT PRIMARY KEY,
	content    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS annotations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	body       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS status_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id    TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate tracker schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// PutItem stores or replaces a work item.
func (s *SQLite) PutItem(ctx context.Context, item *models.WorkItem) error {
	children, err := json.Marshal(item.Children)
	if err != nil {
		return fmt.Errorf("encode children: %w", err)
	}
	footprint, err := json.Marshal(item.Footprint)
	if err != nil {
		return fmt.Errorf("encode footprint: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
INSERT INTO items (id, kind, title, children, footprint, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	title = excluded.title,
	children = excluded.children,
	footprint = excluded.footprint`,
		item.ID, string(item.Kind), item.Title, string(children), string(footprint), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("put item %s: %w", item.ID, err)
	}
	return nil
}

// SetResult records the observed result for a task.
func (s *SQLite) SetResult(ctx context.Context, id string, ref ResultRef) error {
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO results (item_id, ref, state, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(item_id) DO UPDATE SET
	ref = excluded.ref,
	state = excluded.state,
	updated_at = excluded.updated_at`,
		id, ref.Ref, string(ref.State), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set result for %s: %w", id, err)
	}
	return nil
}

// ClearResult removes the result record for a task, returning it to the
// pending state on the next reconstruction. Used to retry failed tasks.
func (s *SQLite) ClearResult(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM results WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("clear result for %s: %w", id, err)
	}
	return nil
}

// AddAnnotation appends an operator annotation.
func (s *SQLite) AddAnnotation(ctx context.Context, ts time.Time, body string) error {
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO annotations (created_at, body) VALUES (?, ?)`, ts.UTC(), body); err != nil {
		return fmt.Errorf("add annotation: %w", err)
	}
	return nil
}

// FetchItem returns the work item with the given id.
func (s *SQLite) FetchItem(ctx context.Context, id string) (*models.WorkItem, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, kind, title, children, footprint, created_at FROM items WHERE id = ?`, id)

	var item models.WorkItem
	var kind, children, footprint string
	if err := row.Scan(&item.ID, &kind, &item.Title, &children, &footprint, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch item %s: %w", id, err)
	}
	item.Kind = models.ItemKind(kind)
	item.Status = models.StatusPending
	if err := json.Unmarshal([]byte(children), &item.Children); err != nil {
		return nil, fmt.Errorf("decode children for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(footprint), &item.Footprint); err != nil {
		return nil, fmt.Errorf("decode footprint for %s: %w", id, err)
	}
	return &item, nil
}

// FetchChildren returns the declared child ids of an item.
func (s *SQLite) FetchChildren(ctx context.Context, id string) ([]string, error) {
	item, err := s.FetchItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return item.Children, nil
}

// FetchResultRef returns the observed result for a task.
func (s *SQLite) FetchResultRef(ctx context.Context, id string) (ResultRef, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT ref, state FROM results WHERE item_id = ?`, id)

	var ref ResultRef
	var state string
	if err := row.Scan(&ref.Ref, &state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResultRef{State: ResultNone}, nil
		}
		return ResultRef{}, fmt.Errorf("fetch result for %s: %w", id, err)
	}
	ref.State = ResultState(state)
	return ref, nil
}

// UpsertCheckpoint overwrites the document at the marker. Repeated writes
// with identical content produce no duplicate rows.
func (s *SQLite) UpsertCheckpoint(ctx context.Context, marker string, doc []byte) error {
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO documents (marker, content, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(marker) DO UPDATE SET
	content = excluded.content,
	updated_at = excluded.updated_at`,
		marker, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", marker, err)
	}
	return nil
}

// FetchCheckpoint returns the document at the marker.
func (s *SQLite) FetchCheckpoint(ctx context.Context, marker string) ([]byte, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE marker = ?`, marker)

	var content []byte
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch checkpoint %s: %w", marker, err)
	}
	return content, nil
}

// FetchAnnotationsSince returns annotations newer than since, oldest first.
func (s *SQLite) FetchAnnotationsSince(ctx context.Context, since time.Time) ([]Annotation, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT created_at, body FROM annotations WHERE created_at > ? ORDER BY created_at ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("fetch annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.Timestamp, &a.Text); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PostStatus records a status note against an item.
func (s *SQLite) PostStatus(ctx context.Context, id, text string) error {
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO status_log (item_id, body, created_at) VALUES (?, ?, ?)`,
		id, text, time.Now().UTC()); err != nil {
		return fmt.Errorf("post status for %s: %w", id, err)
	}
	return nil
}
