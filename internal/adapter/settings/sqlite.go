// Package settings is the explicit typed key-value store for simple flags
// and preferences. It replaces implicit global defaults-style persistence
// with an injected dependency that has a real lifecycle.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"photovault/internal/domain"
)

// Well-known keys. The app-lock PIN gates UI access only; it is independent
// of the content encryption key and never derives it. The PIN value is
// stored as-is, matching the original behavior; see DESIGN.md for the risk
// note on carrying this forward.
const (
	KeyPINSet    = "pin_set"
	KeyPINValue  = "pin_value"
	KeyDecoyMode = "decoy_mode"
)

// SQLiteStore implements domain.SettingsStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the settings database at dbPath and runs the
// schema migration.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate settings db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("settings set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetString(ctx context.Context, key string) (string, bool, error) {
	return s.get(ctx, key)
}

func (s *SQLiteStore) SetString(ctx context.Context, key, value string) error {
	return s.set(ctx, key, value)
}

func (s *SQLiteStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, ok, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, domain.NewVaultError("Settings.GetBool", domain.ErrInvalidInput,
			fmt.Sprintf("key %q holds non-bool value %q", key, raw))
	}
	return v, true, nil
}

func (s *SQLiteStore) SetBool(ctx context.Context, key string, value bool) error {
	return s.set(ctx, key, strconv.FormatBool(value))
}

func (s *SQLiteStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, domain.NewVaultError("Settings.GetInt", domain.ErrInvalidInput,
			fmt.Sprintf("key %q holds non-int value %q", key, raw))
	}
	return v, true, nil
}

func (s *SQLiteStore) SetInt(ctx context.Context, key string, value int64) error {
	return s.set(ctx, key, strconv.FormatInt(value, 10))
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("settings delete %q: %w", key, err)
	}
	return nil
}
