package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dyluth/signboard/pkg/signboard"
)

// One database can hold several sessions; every row is keyed by session.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS signboards (
	session    TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	id         TEXT    NOT NULL,
	text       TEXT    NOT NULL,
	x          REAL    NOT NULL,
	y          REAL    NOT NULL,
	width      REAL    NOT NULL,
	height     REAL    NOT NULL,
	opacity    REAL    NOT NULL,
	text_color TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (session, id)
);
CREATE TABLE IF NOT EXISTS meta (
	session  TEXT    PRIMARY KEY,
	saved_at INTEGER NOT NULL
);
`

// SQLiteStore keeps the snapshot as ordered rows in a SQLite database.
// Save replaces a session's rows in one transaction and records the session
// in meta, which is the first-launch marker.
type SQLiteStore struct {
	sqlDB   *sql.DB
	session string
}

// OpenSQLite opens (creating if needed) the database at path for session.
func OpenSQLite(path, session string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if cleanPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, session: session}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) []signboard.Signboard {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, text, x, y, width, height, opacity, text_color
		 FROM signboards WHERE session = ? ORDER BY position`, s.session)
	if err != nil {
		log.Printf("[Store] Failed to query signboards, starting empty: %v", err)
		return []signboard.Signboard{}
	}
	defer rows.Close()

	var items []signboard.Signboard
	for rows.Next() {
		var item signboard.Signboard
		var color string
		if err := rows.Scan(&item.ID, &item.Text, &item.Frame.X, &item.Frame.Y,
			&item.Frame.Width, &item.Frame.Height, &item.Opacity, &color); err != nil {
			log.Printf("[Store] Failed to scan signboard row, starting empty: %v", err)
			return []signboard.Signboard{}
		}
		item.TextColor = signboard.TextColor(color)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[Store] Failed to read signboards, starting empty: %v", err)
		return []signboard.Signboard{}
	}
	return signboard.Sanitize(items)
}

func (s *SQLiteStore) Initialized(ctx context.Context) bool {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM meta WHERE session = ?`, s.session).Scan(&n)
	if err != nil {
		log.Printf("[Store] Failed to read marker: %v", err)
		return false
	}
	return n > 0
}

func (s *SQLiteStore) Save(ctx context.Context, items []signboard.Signboard) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM signboards WHERE session = ?`, s.session); err != nil {
		return fmt.Errorf("clear signboards: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO signboards (session, position, id, text, x, y, width, height, opacity, text_color)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		if _, err := stmt.ExecContext(ctx, s.session, i, item.ID, item.Text,
			item.Frame.X, item.Frame.Y, item.Frame.Width, item.Frame.Height,
			item.Opacity, string(item.TextColor)); err != nil {
			return fmt.Errorf("insert signboard %s: %w", item.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (session, saved_at) VALUES (?, ?)
		 ON CONFLICT(session) DO UPDATE SET saved_at = excluded.saved_at`,
		s.session, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
