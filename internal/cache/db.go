// Package cache provides the SQLite-backed checkpoint store and label
// timeline cache for single-host deployments.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Jayphen/prisync/internal/types"
	_ "modernc.org/sqlite"
)

// DB represents a SQLite database connection for sync state.
type DB struct {
	path string
	conn *sql.DB
}

const createCheckpointsTableSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
    key TEXT PRIMARY KEY,
    cursor TEXT,
    watermark TEXT,
    pending TEXT,
    updated_at TEXT
);
`

// createIssuesTableSQL holds the latest snapshot per issue URL.
const createIssuesTableSQL = `
CREATE TABLE IF NOT EXISTS issues (
    url TEXT PRIMARY KEY,
    repo TEXT NOT NULL,
    number INTEGER NOT NULL,
    pull INTEGER DEFAULT 0,
    state TEXT,
    labels TEXT,    -- JSON array of label names
    timeline TEXT,  -- JSON array of label events, most recent first
    updated_at TEXT,
    scanned_at TEXT
);
`

// createLinksTableSQL is the issue URL -> task reverse index.
const createLinksTableSQL = `
CREATE TABLE IF NOT EXISTS links (
    url TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    priority TEXT,  -- NULL when the task has no priority
    edited_at TEXT
);
`

// InitDB creates or opens a SQLite database at the given path and initializes the schema.
func InitDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	for name, stmt := range map[string]string{
		"checkpoints": createCheckpointsTableSQL,
		"issues":      createIssuesTableSQL,
		"links":       createLinksTableSQL,
	} {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create %s table: %w", name, err)
		}
	}

	return &DB{
		path: path,
		conn: conn,
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// GetCheckpoint returns the checkpoint for key, or nil if none was stored.
func (db *DB) GetCheckpoint(ctx context.Context, key string) (*types.Checkpoint, error) {
	var cursor, watermark, pending, updatedAt sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT cursor, watermark, pending, updated_at FROM checkpoints WHERE key = ?`, key,
	).Scan(&cursor, &watermark, &pending, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint %s: %w", key, err)
	}

	return &types.Checkpoint{
		Cursor:    cursor.String,
		Watermark: watermark.String,
		Pending:   pending.String,
		UpdatedAt: parseTime(updatedAt.String),
	}, nil
}

// SetCheckpoint stores the checkpoint for key.
func (db *DB) SetCheckpoint(ctx context.Context, key string, cp types.Checkpoint) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (key, cursor, watermark, pending, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		key,
		nullString(cp.Cursor),
		nullString(cp.Watermark),
		nullString(cp.Pending),
		formatTime(cp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to set checkpoint %s: %w", key, err)
	}
	return nil
}

// Checkpoints returns all stored checkpoints keyed by scanner key.
func (db *DB) Checkpoints(ctx context.Context) (map[string]types.Checkpoint, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, cursor, watermark, pending, updated_at FROM checkpoints ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]types.Checkpoint)
	for rows.Next() {
		var key string
		var cursor, watermark, pending, updatedAt sql.NullString
		if err := rows.Scan(&key, &cursor, &watermark, &pending, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints[key] = types.Checkpoint{
			Cursor:    cursor.String,
			Watermark: watermark.String,
			Pending:   pending.String,
			UpdatedAt: parseTime(updatedAt.String),
		}
	}
	return checkpoints, rows.Err()
}

// PutIssue replaces the stored snapshot of an issue.
func (db *DB) PutIssue(ctx context.Context, snap types.IssueSnapshot) error {
	labelsJSON, err := json.Marshal(snap.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}
	timelineJSON, err := json.Marshal(snap.Timeline)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO issues (
			url, repo, number, pull, state, labels, timeline, updated_at, scanned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.URL,
		snap.Repo,
		snap.Number,
		snap.Pull,
		nullString(snap.State),
		string(labelsJSON),
		string(timelineJSON),
		formatTime(snap.UpdatedAt),
		formatTime(snap.ScannedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert issue %s: %w", snap.URL, err)
	}
	return nil
}

// SetLink stores the reverse-index entry for an issue URL.
func (db *DB) SetLink(ctx context.Context, url string, link types.Link) error {
	var priority sql.NullString
	if link.Priority != nil {
		priority = sql.NullString{String: *link.Priority, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO links (url, task_id, priority, edited_at)
		VALUES (?, ?, ?, ?)
	`, url, link.TaskID, priority, formatTime(link.EditedAt))
	if err != nil {
		return fmt.Errorf("failed to set link %s: %w", url, err)
	}
	return nil
}

// GetIssue returns the snapshot and link stored for url.
func (db *DB) GetIssue(ctx context.Context, url string) (*types.IssueState, error) {
	state := &types.IssueState{URL: url}

	var snap types.IssueSnapshot
	var stateCol, labels, timeline, updatedAt, scannedAt sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT url, repo, number, pull, state, labels, timeline, updated_at, scanned_at
		FROM issues WHERE url = ?
	`, url).Scan(&snap.URL, &snap.Repo, &snap.Number, &snap.Pull, &stateCol, &labels, &timeline, &updatedAt, &scannedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get issue %s: %w", url, err)
	default:
		snap.State = stateCol.String
		if labels.Valid && labels.String != "" {
			if err := json.Unmarshal([]byte(labels.String), &snap.Labels); err != nil {
				return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
			}
		}
		if timeline.Valid && timeline.String != "" {
			if err := json.Unmarshal([]byte(timeline.String), &snap.Timeline); err != nil {
				return nil, fmt.Errorf("failed to unmarshal timeline: %w", err)
			}
		}
		snap.UpdatedAt = parseTime(updatedAt.String)
		snap.ScannedAt = parseTime(scannedAt.String)
		state.Snapshot = &snap
	}

	var (
		link     types.Link
		priority sql.NullString
		editedAt sql.NullString
	)
	err = db.conn.QueryRowContext(ctx,
		`SELECT task_id, priority, edited_at FROM links WHERE url = ?`, url,
	).Scan(&link.TaskID, &priority, &editedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get link %s: %w", url, err)
	default:
		if priority.Valid {
			p := priority.String
			link.Priority = &p
		}
		link.EditedAt = parseTime(editedAt.String)
		state.Link = &link
	}

	if state.Snapshot == nil && state.Link == nil {
		return nil, nil
	}
	return state, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
