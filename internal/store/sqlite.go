// Package store provides storage backends for PDIMentor.
//
// This file implements an SQLite-backed session store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/PDIMentor/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(id string) (*models.SessionState, error) {
	if id == "" {
		return nil, models.ErrInvalidSessionID
	}
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return decodeSession(data)
}

func (s *SQLiteStore) SaveSession(st *models.SessionState) error {
	if st == nil || st.ID == "" {
		return models.ErrInvalidSessionID
	}
	data, err := encodeSession(st)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, data, step_index, start_time, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, step_index = excluded.step_index, updated_at = excluded.updated_at`,
		st.ID, data, st.StepIndex, st.StartTime.UTC(), st.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "id", st.ID)
		return fmt.Errorf("failed to save session %s: %w", st.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "id", st.ID, "messages", len(st.Messages))
	return nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSessionsBefore(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE updated_at < ? ORDER BY id`, cutoff.UTC())
	if err != nil {
		slog.Error("SQLiteStore DeleteSessionsBefore query failed", "error", err)
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC()); err != nil {
		slog.Error("SQLiteStore DeleteSessionsBefore delete failed", "error", err)
		return nil, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	return ids, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
