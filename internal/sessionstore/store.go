// Package sessionstore keeps the signed-in session on disk so it survives
// restarts of the CLI.
package sessionstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const currentSlot = "current"

// Store is a SQLite-backed identity.SessionStore holding at most one session.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens and migrates the session database at path, creating parent
// directories as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session store path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create session store dir: %w", err)
	}

	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := store.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.sqlDB, fsys)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the persisted session, or nil when there is none.
func (s *Store) Load(ctx context.Context) (*models.Session, error) {
	var payload string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload_json FROM auth_session WHERE slot = ?`, currentSlot,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		// An unreadable row is treated as signed out.
		_ = s.Clear(ctx)
		return nil, nil
	}
	return &session, nil
}

// Save replaces the persisted session. A nil session clears it.
func (s *Store) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO auth_session (slot, user_id, email, payload_json, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			payload_json = excluded.payload_json,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		currentSlot,
		session.User.ID,
		session.User.Email,
		string(payload),
		session.ExpiresAt.Unix(),
		s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the persisted session.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM auth_session WHERE slot = ?`, currentSlot); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
