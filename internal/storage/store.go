// Package storage persists accounts, profiles and sessions in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrylevesque/stationbook/internal/models"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("record already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
	full_name  TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL CHECK (role IN ('user', 'owner')),
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	revoked_at INTEGER
);
CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at);
`

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Store implements account, profile and session persistence over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateAccount inserts an account together with its profile.
func (s *Store) CreateAccount(ctx context.Context, account models.Account, profile models.Profile) error {
	if strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("account id is required")
	}
	if profile.ID != account.ID {
		return fmt.Errorf("profile id %q does not match account id %q", profile.ID, account.ID)
	}
	if _, ok := models.ParseRole(string(profile.Role)); !ok {
		return fmt.Errorf("invalid role %q", profile.Role)
	}

	// Transactions take the write lock up front (_txlock=immediate) so a
	// concurrent signup waits on busy_timeout instead of failing the upgrade.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE email = ?`, account.Email).Scan(&exists)
	switch {
	case err == nil:
		return ErrConflict
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check email: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		account.ID, account.Email, account.PasswordHash, toMillis(account.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, role, updated_at) VALUES (?, ?, ?, ?)`,
		profile.ID, profile.FullName, string(profile.Role), toMillis(profile.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit account: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// AccountByEmail loads the account registered under email.
func (s *Store) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	var (
		a       models.Account
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// Profile loads the full profile record for userID.
func (s *Store) Profile(ctx context.Context, userID string) (models.Profile, error) {
	var (
		p       models.Profile
		role    string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, role, updated_at FROM profiles WHERE id = ?`, userID,
	).Scan(&p.ID, &p.FullName, &role, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.Role = models.Role(role)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// ProfileRole selects only the role of the profile keyed by userID.
func (s *Store) ProfileRole(ctx context.Context, userID string) (models.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get profile role: %w", err)
	}
	return models.Role(role), nil
}

// SetRole changes the role on the profile keyed by userID.
func (s *Store) SetRole(ctx context.Context, userID string, role models.Role, at time.Time) error {
	if _, ok := models.ParseRole(string(role)); !ok {
		return fmt.Errorf("invalid role %q", role)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), toMillis(at), userID,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return requireAffected(res)
}

// PutSession inserts a new session row.
func (s *Store) PutSession(ctx context.Context, session models.Session) error {
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.UserID) == "" {
		return fmt.Errorf("session id and user id are required")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.UserID, toMillis(session.CreatedAt), toMillis(session.ExpiresAt),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads a session by id, including revoked and expired ones.
func (s *Store) GetSession(ctx context.Context, id string) (models.Session, error) {
	var (
		sess             models.Session
		created, expires int64
		revoked          sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &created, &expires, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = fromMillis(created)
	sess.ExpiresAt = fromMillis(expires)
	if revoked.Valid {
		at := fromMillis(revoked.Int64)
		sess.RevokedAt = &at
	}
	return sess, nil
}

// RevokeSession marks a session revoked. Revoking twice keeps the first timestamp.
func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`, toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return requireAffected(res)
}

// DeleteExpiredSessions removes sessions that expired before now and returns how many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
