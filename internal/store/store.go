// Package store provides session storage backends for PDIMentor.
//
// The default backend keeps sessions in memory for the lifetime of the process. SQLite and
// PostgreSQL backends keep the same JSON document per session so a restart does not lose
// half-finished intakes.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/models"
)

// Store persists session state between requests.
type Store interface {
	// GetSession returns the session with id, or (nil, nil) when it does not exist.
	GetSession(id string) (*models.SessionState, error)
	// SaveSession inserts or replaces the session.
	SaveSession(s *models.SessionState) error
	// DeleteSession removes the session; deleting a missing session is not an error.
	DeleteSession(id string) error
	// DeleteSessionsBefore removes sessions not updated since cutoff and returns their ids.
	DeleteSessionsBefore(cutoff time.Time) ([]string, error)
	// Close releases backend resources.
	Close() error

	DedupRepo
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Driver names returned by DetectDSNType.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DetectDSNType reports which backend a DSN addresses. An empty DSN selects the in-memory store.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return DriverMemory
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// Open builds the backend the DSN addresses.
func Open(dsn string) (Store, error) {
	switch DetectDSNType(dsn) {
	case DriverPostgres:
		slog.Debug("store.Open: using PostgreSQL session store")
		return NewPostgresStore(WithPostgresDSN(dsn))
	case DriverSQLite:
		slog.Debug("store.Open: using SQLite session store", "path", dsn)
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	default:
		slog.Debug("store.Open: using in-memory session store")
		return NewInMemoryStore(), nil
	}
}

// InMemoryStore is a concurrency-safe in-memory session store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionState
	inbound  map[string]*InboundRecord
}

// InboundRecord is the in-memory form of one inbound_dedup row.
type InboundRecord struct {
	SessionID   string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.SessionState),
		inbound:  make(map[string]*InboundRecord),
	}
}

func (s *InMemoryStore) GetSession(id string) (*models.SessionState, error) {
	if id == "" {
		return nil, models.ErrInvalidSessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) SaveSession(st *models.SessionState) error {
	if st == nil || st.ID == "" {
		return models.ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.ID] = st.Clone()
	return nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) DeleteSessionsBefore(cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, st := range s.sessions {
		if st.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
			delete(s.sessions, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) RecordInbound(messageID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = &InboundRecord{SessionID: sessionID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) ForgetInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inbound, messageID)
	return nil
}

// Inbound returns a copy of the dedup record for messageID.
func (s *InMemoryStore) Inbound(messageID string) (InboundRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inbound[messageID]
	if !ok {
		return InboundRecord{}, false
	}
	return *rec, true
}

func (s *InMemoryStore) PruneInbound(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.inbound {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
