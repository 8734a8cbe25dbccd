// Package scheduler runs periodic housekeeping for PDIMentor.
//
// Jobs are registered with cron expressions. The session sweeper drops idle sessions
// together with their cached summaries and stale webhook dedup records.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the session sweeper every fifteen minutes.
const DefaultSweepSchedule = "*/15 * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SessionPruner is the slice of the session store the sweeper needs.
type SessionPruner interface {
	DeleteSessionsBefore(cutoff time.Time) ([]string, error)
	PruneInbound(cutoff time.Time) (int64, error)
}

// CacheInvalidator drops per-session cached data.
type CacheInvalidator interface {
	Invalidate(sessionID string)
}

// Sweeper deletes sessions idle for longer than TTL.
type Sweeper struct {
	store SessionPruner
	cache CacheInvalidator
	ttl   time.Duration
	now   func() time.Time
}

// NewSweeper builds a sweeper. cache may be nil.
func NewSweeper(store SessionPruner, cache CacheInvalidator, ttl time.Duration) *Sweeper {
	return &Sweeper{store: store, cache: cache, ttl: ttl, now: time.Now}
}

// Run performs one sweep. Errors are logged; the next tick retries.
func (w *Sweeper) Run() {
	cutoff := w.now().Add(-w.ttl)
	ids, err := w.store.DeleteSessionsBefore(cutoff)
	if err != nil {
		slog.Error("Sweeper.Run: failed to delete idle sessions", "error", err)
		return
	}
	if w.cache != nil {
		for _, id := range ids {
			w.cache.Invalidate(id)
		}
	}
	pruned, err := w.store.PruneInbound(cutoff)
	if err != nil {
		slog.Warn("Sweeper.Run: failed to prune inbound dedup records", "error", err)
	}
	if len(ids) > 0 || pruned > 0 {
		slog.Info("Sweeper.Run: swept idle sessions", "sessions", len(ids), "dedupRecords", pruned, "cutoff", cutoff)
	}
}

// Register adds the sweeper to s using expr.
func (w *Sweeper) Register(s *Scheduler, expr string) error {
	if err := s.AddJob(expr, w.Run); err != nil {
		return err
	}
	slog.Debug("Sweeper.Register: session sweeper scheduled", "schedule", expr, "ttl", w.ttl)
	return nil
}
