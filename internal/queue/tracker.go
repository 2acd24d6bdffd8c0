// Package queue implements the durable collection job queue: the producer
// that decomposes a user harvest into typed jobs, the polling worker, and
// the completion tracker that fires aggregation exactly once per user.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campuscode-io/github-harvester/internal/storage"
)

// StatisticsTrigger receives the "recompute statistics for login" signal
// when a user's outstanding job count reaches zero.
type StatisticsTrigger interface {
	RecalculateUser(ctx context.Context, login string) error
}

// CompletionTracker counts outstanding jobs per user in the shared store.
// The counter add is atomic, so concurrent workers and producers never lose
// an update; the counter row is deleted when it reaches zero, which makes
// the aggregation trigger fire exactly once.
type CompletionTracker struct {
	store         storage.Storage
	trigger       StatisticsTrigger
	sweepInterval time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCompletionTracker creates a tracker with the given reconciliation
// sweep interval.
func NewCompletionTracker(store storage.Storage, trigger StatisticsTrigger, sweepInterval time.Duration) *CompletionTracker {
	return &CompletionTracker{
		store:         store,
		trigger:       trigger,
		sweepInterval: sweepInterval,
		inflight:      make(map[string]struct{}),
	}
}

// TrackUserJobs registers the expected completion count for a user run.
func (t *CompletionTracker) TrackUserJobs(ctx context.Context, login string, count int) error {
	if err := t.store.SetJobCounter(ctx, login, count); err != nil {
		return err
	}
	t.mu.Lock()
	t.inflight[login] = struct{}{}
	t.mu.Unlock()
	slog.Debug("tracking jobs for user", "login", login, "count", count)
	return nil
}

// UntrackUserJobs removes a user's counter and in-flight entry. The
// producer calls it to unwind a run whose jobs never reached the queue.
func (t *CompletionTracker) UntrackUserJobs(ctx context.Context, login string) error {
	if err := t.store.DeleteJobCounter(ctx, login); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.inflight, login)
	t.mu.Unlock()
	return nil
}

// IncrementJobCount adds newly discovered jobs to the user's counter.
func (t *CompletionTracker) IncrementJobCount(ctx context.Context, login string, delta int) error {
	_, _, err := t.store.AddJobCounter(ctx, login, delta)
	return err
}

// DecrementJobCount records one terminal job (success or dead-letter).
// Reaching zero deletes the counter and triggers aggregation.
func (t *CompletionTracker) DecrementJobCount(ctx context.Context, login string) error {
	remaining, existed, err := t.store.AddJobCounter(ctx, login, -1)
	if err != nil {
		return err
	}
	if !existed {
		// Counter already deleted: a previous decrement completed the run.
		return nil
	}
	if remaining > 0 {
		return nil
	}
	return t.complete(ctx, login)
}

// complete deletes the counter and fires the trigger. The delete is
// conditional on the counter being at zero and reports whether this call
// removed the row, so when a decrement and the sweep race only the caller
// that won the delete fires.
func (t *CompletionTracker) complete(ctx context.Context, login string) error {
	deleted, err := t.store.DeleteJobCounterIfDone(ctx, login)
	if err != nil {
		return err
	}
	if !deleted {
		// Another completer removed the counter first, or a late increment
		// pushed it back above zero.
		return nil
	}
	t.mu.Lock()
	delete(t.inflight, login)
	t.mu.Unlock()

	slog.Info("all collection jobs completed", "login", login)
	if err := t.trigger.RecalculateUser(ctx, login); err != nil {
		slog.Error("statistics recalculation failed", "login", login, "error", err)
		return err
	}
	return nil
}

// Run executes the reconciliation sweep at a fixed interval until the
// context is cancelled. The sweep catches completions whose notification
// was missed; it is not the primary trigger path.
func (t *CompletionTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep re-checks every in-flight login against the shared counter store.
func (t *CompletionTracker) Sweep(ctx context.Context) {
	t.mu.Lock()
	logins := make([]string, 0, len(t.inflight))
	for login := range t.inflight {
		logins = append(logins, login)
	}
	t.mu.Unlock()

	for _, login := range logins {
		count, existed, err := t.store.GetJobCounter(ctx, login)
		if err != nil {
			slog.Warn("sweep failed to read job counter", "login", login, "error", err)
			continue
		}
		if !existed {
			// Counter gone but login still marked in flight: the completion
			// notification was missed. Fire now.
			t.mu.Lock()
			_, stillInflight := t.inflight[login]
			delete(t.inflight, login)
			t.mu.Unlock()
			if stillInflight {
				if err := t.trigger.RecalculateUser(ctx, login); err != nil {
					slog.Error("sweep recalculation failed", "login", login, "error", err)
				}
			}
			continue
		}
		if count <= 0 {
			if err := t.complete(ctx, login); err != nil {
				slog.Error("sweep completion failed", "login", login, "error", err)
			}
		}
	}
}

// InflightLogins returns the logins currently tracked in this process.
func (t *CompletionTracker) InflightLogins() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	logins := make([]string, 0, len(t.inflight))
	for login := range t.inflight {
		logins = append(logins, login)
	}
	return logins
}
