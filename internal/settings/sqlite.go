package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/woxQAQ/sourcehost/internal/value"
)

// SQLiteStore persists settings in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create settings dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
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
			plugin_id  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (plugin_id, key)
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, pluginID, key string) (value.Value, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE plugin_id = ? AND key = ?", pluginID, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return value.Value{}, false, nil
	}
	if err != nil {
		return value.Value{}, false, err
	}

	v, err := decode([]byte(raw))
	if err != nil {
		return value.Value{}, false, fmt.Errorf("decode setting %s.%s: %w", pluginID, key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, pluginID, key string, v value.Value) error {
	raw, err := encode(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (plugin_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (plugin_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		pluginID, key, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, pluginID, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM settings WHERE plugin_id = ? AND key = ?", pluginID, key,
	)
	return err
}
