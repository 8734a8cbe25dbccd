// Package store provides storage backends for PDIMentor.
//
// This file implements a PostgreSQL-backed session store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PDIMentor/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(id string) (*models.SessionState, error) {
	if id == "" {
		return nil, models.ErrInvalidSessionID
	}
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return decodeSession(data)
}

func (s *PostgresStore) SaveSession(st *models.SessionState) error {
	if st == nil || st.ID == "" {
		return models.ErrInvalidSessionID
	}
	data, err := encodeSession(st)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, data, step_index, start_time, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, step_index = EXCLUDED.step_index, updated_at = EXCLUDED.updated_at`,
		st.ID, data, st.StepIndex, st.StartTime, st.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "id", st.ID)
		return fmt.Errorf("failed to save session %s: %w", st.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "id", st.ID, "messages", len(st.Messages))
	return nil
}

func (s *PostgresStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSessionsBefore(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`DELETE FROM sessions WHERE updated_at < $1 RETURNING id`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteSessionsBefore failed", "error", err)
		return nil, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	return scanIDs(rows)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
