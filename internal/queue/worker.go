package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/campuscode-io/github-harvester/internal/collector"
	"github.com/campuscode-io/github-harvester/internal/crypto"
	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

const (
	defaultRateLimitDelay = 5 * time.Minute
	maxBackoff            = 10 * time.Minute
)

// GuardFactory builds a rate limit guard bound to one decrypted token. The
// worker consults it to schedule rate limited jobs at the reset boundary.
type GuardFactory func(ctx context.Context, token string) RateLimitWaiter

// RateLimitWaiter reports how long to wait before the API budget resets.
type RateLimitWaiter interface {
	WaitTime(ctx context.Context) (time.Duration, error)
}

// Worker polls the queue at a fixed delay and executes one job per tick.
// Ticks never overlap: the next poll is scheduled only after the current
// job reaches a terminal or requeued state.
type Worker struct {
	store        storage.Storage
	tracker      *CompletionTracker
	producer     *Producer
	encryptor    crypto.TokenEncryptor
	collectors   collector.Factory
	guards       GuardFactory
	pollInterval time.Duration
}

// NewWorker creates a worker. guards may be nil; rate limited jobs then
// fall back to a fixed reschedule delay.
func NewWorker(
	store storage.Storage,
	tracker *CompletionTracker,
	producer *Producer,
	encryptor crypto.TokenEncryptor,
	collectors collector.Factory,
	guards GuardFactory,
	pollInterval time.Duration,
) *Worker {
	return &Worker{
		store:        store,
		tracker:      tracker,
		producer:     producer,
		encryptor:    encryptor,
		collectors:   collectors,
		guards:       guards,
		pollInterval: pollInterval,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("collection worker started", "poll_interval", w.pollInterval)
	for {
		w.Tick(ctx)
		select {
		case <-ctx.Done():
			slog.Info("collection worker stopped")
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// Tick claims and executes at most one due job.
func (w *Worker) Tick(ctx context.Context) {
	job, err := w.store.DequeueJob(ctx)
	if err != nil {
		slog.Error("failed to dequeue job", "error", err)
		return
	}
	if job == nil {
		return
	}

	start := time.Now()
	slog.Info("processing job", "job_id", job.ID, "type", job.Type, "login", job.GithubLogin, "retry", job.RetryCount)

	err = w.process(ctx, job)
	if err == nil {
		w.succeed(ctx, job, time.Since(start))
		return
	}
	w.handleFailure(ctx, job, err)
}

func (w *Worker) succeed(ctx context.Context, job *domain.CollectionJob, took time.Duration) {
	if err := w.store.CompleteJob(ctx, job); err != nil {
		slog.Error("failed to mark job completed", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("job completed", "job_id", job.ID, "type", job.Type, "login", job.GithubLogin, "duration", took)
	if err := w.tracker.DecrementJobCount(ctx, job.GithubLogin); err != nil {
		slog.Error("failed to decrement job count", "login", job.GithubLogin, "error", err)
	}
}

func (w *Worker) handleFailure(ctx context.Context, job *domain.CollectionJob, jobErr error) {
	// Rate limit exhaustion is scheduling pressure, not a job defect: push
	// the job out past the reset without consuming a retry.
	if apperrors.IsRateLimited(jobErr) {
		delay := w.rateLimitDelay(ctx, job)
		slog.Warn("job rate limited, rescheduling", "job_id", job.ID, "delay", delay)
		if err := w.store.RequeueJob(ctx, job, delay); err != nil {
			slog.Error("failed to requeue rate limited job", "job_id", job.ID, "error", err)
		}
		return
	}

	job.RetryCount++
	job.LastError = jobErr.Error()

	if apperrors.IsRetryable(jobErr) && !job.RetriesExhausted() {
		delay := backoff(job.RetryCount)
		slog.Warn("job failed, retrying", "job_id", job.ID, "type", job.Type, "retry", job.RetryCount, "delay", delay, "error", jobErr)
		if err := w.store.RequeueJob(ctx, job, delay); err != nil {
			slog.Error("failed to requeue job", "job_id", job.ID, "error", err)
		}
		return
	}

	slog.Error("job dead-lettered", "job_id", job.ID, "type", job.Type, "login", job.GithubLogin, "error", jobErr)
	if err := w.store.FailJob(ctx, job); err != nil {
		slog.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}
	// A dead-lettered job still counts toward completion, otherwise the
	// user's aggregation would never fire.
	if err := w.tracker.DecrementJobCount(ctx, job.GithubLogin); err != nil {
		slog.Error("failed to decrement job count", "login", job.GithubLogin, "error", err)
	}
}

func (w *Worker) process(ctx context.Context, job *domain.CollectionJob) error {
	token, err := w.encryptor.Decrypt(job.EncryptedToken)
	if err != nil {
		return apperrors.NewNonRetryableError("failed to decrypt job token", err)
	}

	user := domain.UserRef{
		UserID:         job.UserID,
		GithubLogin:    job.GithubLogin,
		EncryptedToken: job.EncryptedToken,
	}
	coll := w.collectors(ctx, token)

	switch job.Type {
	case domain.JobTypeUserBasic:
		return coll.CollectUserBasic(ctx, user)
	case domain.JobTypeUserEvents:
		return w.processUserEvents(ctx, coll, user)
	case domain.JobTypeRepoCommits:
		_, err := coll.CollectCommits(ctx, user, job.RepoOwner, job.RepoName)
		return err
	case domain.JobTypeRepoPRs:
		_, err := coll.CollectPullRequests(ctx, user, job.RepoOwner, job.RepoName)
		return err
	case domain.JobTypeRepoIssues:
		_, err := coll.CollectIssues(ctx, user, job.RepoOwner, job.RepoName)
		return err
	default:
		return apperrors.NewNonRetryableError(fmt.Sprintf("unknown job type %q", job.Type), nil)
	}
}

// processUserEvents runs repository discovery, fans out per-repository jobs
// for every hit, then harvests the user's cross-repository streams.
func (w *Worker) processUserEvents(ctx context.Context, coll collector.Collector, user domain.UserRef) error {
	repos, err := coll.DiscoverRepositories(ctx, user)
	if err != nil {
		return err
	}
	for _, fullName := range repos {
		owner, name, ok := domain.SplitRepoFullName(fullName)
		if !ok {
			slog.Warn("skipping malformed repository name", "full_name", fullName)
			continue
		}
		if err := w.producer.EnqueueRepositoryCollection(ctx, user, owner, name); err != nil {
			return fmt.Errorf("failed to fan out repository %s: %w", fullName, err)
		}
	}
	_, err = coll.CollectUserEvents(ctx, user)
	return err
}

func (w *Worker) rateLimitDelay(ctx context.Context, job *domain.CollectionJob) time.Duration {
	if w.guards == nil {
		return defaultRateLimitDelay
	}
	token, err := w.encryptor.Decrypt(job.EncryptedToken)
	if err != nil {
		return defaultRateLimitDelay
	}
	wait, err := w.guards(ctx, token).WaitTime(ctx)
	if err != nil || wait <= 0 {
		return defaultRateLimitDelay
	}
	return wait
}

// backoff returns the delay before retry n: 2^n seconds with up to 50%
// jitter, capped at maxBackoff.
func backoff(retry int) time.Duration {
	base := time.Duration(math.Pow(2, float64(retry))) * time.Second
	if base > maxBackoff {
		base = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))
	d := base + jitter
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
