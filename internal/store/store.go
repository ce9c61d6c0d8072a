// Package store persists session-to-user ownership bookkeeping in SQLite.
// The in-memory registry stays the source of truth for live state; this
// journal is written through so ownership and audit rows survive restarts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// isBusyLock reports whether err indicates an SQLite lock (SQLITE_BUSY).
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// SessionRecord is one row of the ownership journal.
type SessionRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Image        string    `json:"image"`
	VolumeName   string    `json:"volume_name"`
	ContainerID  string    `json:"container_id"`
	State        string    `json:"state"`
	ErrorCode    string    `json:"error_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	image         TEXT NOT NULL,
	volume_name   TEXT NOT NULL DEFAULT '',
	container_id  TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT 'pending',
	error_code    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	last_activity DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
`

// DefaultMaxOpenConns is the connection pool size; WAL mode allows
// multiple readers alongside the single writer.
const DefaultMaxOpenConns = 4

// dsnWithPragmas applies WAL, busy_timeout, and perf pragmas per
// connection; the driver applies DSN pragmas to every new connection.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSession(rec *SessionRecord) error {
	err := retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO sessions (id, user_id, image, volume_name, container_id, state, error_code, created_at, last_activity)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UserID, rec.Image, rec.VolumeName, rec.ContainerID,
			rec.State, rec.ErrorCode, rec.CreatedAt.UTC(), rec.LastActivity.UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, image, volume_name, container_id, state, error_code, created_at, last_activity
		 FROM sessions WHERE id = ?`, id,
	)
	return scanSession(row)
}

func (s *Store) ListSessionsByUser(userID string) ([]*SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, image, volume_name, container_id, state, error_code, created_at, last_activity
		 FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListActiveSessions returns rows still holding resources: everything not
// yet terminated or errored. Startup reconciliation reads this to find
// sessions a previous daemon run left behind.
func (s *Store) ListActiveSessions() ([]*SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, image, volume_name, container_id, state, error_code, created_at, last_activity
		 FROM sessions WHERE state NOT IN ('terminated', 'error') ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) UpdateSessionState(id, state, errorCode, containerID string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE sessions SET state = ?, error_code = ?, container_id = ?, last_activity = ? WHERE id = ?`,
			state, errorCode, containerID, time.Now().UTC(), id,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("updating session state: %w", err)
	}
	return checkRowAffected(result, id)
}

func (s *Store) UpdateSessionVolume(id, volumeName string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE sessions SET volume_name = ? WHERE id = ?`, volumeName, id,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("updating session volume: %w", err)
	}
	return checkRowAffected(result, id)
}

func (s *Store) TouchSession(id string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE sessions SET last_activity = ? WHERE id = ?`, time.Now().UTC(), id,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return checkRowAffected(result, id)
}

func (s *Store) DeleteSession(id string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
		return e
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return checkRowAffected(result, id)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*SessionRecord, error) {
	var rec SessionRecord
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Image, &rec.VolumeName, &rec.ContainerID,
		&rec.State, &rec.ErrorCode, &rec.CreatedAt, &rec.LastActivity,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &rec, nil
}

func scanSessions(rows *sql.Rows) ([]*SessionRecord, error) {
	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return records, nil
}

func checkRowAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
