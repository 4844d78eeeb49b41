// Package users tracks which chatters have been seen before and greets
// first-time chatters.
package users

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sombot/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS known_users (
	user_id    TEXT PRIMARY KEY,
	login      TEXT NOT NULL,
	first_seen TIMESTAMP NOT NULL
);
`

// Store persists known users in a SQLite database, so restarts do not
// re-greet everyone.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open users database: %w", err)
	}

	// SQLite handles one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize users database: %w", err)
	}

	logging.Debug("Users", "Opened users database at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FirstTime records the user and reports whether this was their first
// appearance. The insert-if-absent is a single statement, so concurrent
// messages from the same new user produce exactly one true result.
func (s *Store) FirstTime(ctx context.Context, userID, login string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO known_users (user_id, login, first_seen) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, login, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record user %s: %w", userID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted == 1, nil
}

// Known reports whether the user has been seen before, without recording
// anything.
func (s *Store) Known(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM known_users WHERE user_id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns how many users have been seen.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM known_users`).Scan(&n)
	return n, err
}
