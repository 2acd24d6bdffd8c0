package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// Job priorities. Lower values dequeue first, so profile and event jobs
// run before the per-repository fan-out, and commit history (the heaviest
// stream) drains last.
const (
	priorityUserBasic  = 1
	priorityUserEvents = 2
	priorityRepoMeta   = 3
	priorityRepoCommit = 4
)

const initialUserJobs = 2

// Producer decomposes a harvest request into collection jobs and registers
// the expected completion counts with the tracker.
type Producer struct {
	store      storage.Storage
	tracker    *CompletionTracker
	maxRetries int
}

// NewProducer creates a producer. maxRetries is stamped onto every job it
// enqueues.
func NewProducer(store storage.Storage, tracker *CompletionTracker, maxRetries int) *Producer {
	return &Producer{store: store, tracker: tracker, maxRetries: maxRetries}
}

// EnqueueUserCollection starts a harvest run for one user: a profile job
// and a cross-repository event job. The tracker is primed before the jobs
// become visible, so a fast worker cannot decrement a counter that does
// not exist yet.
func (p *Producer) EnqueueUserCollection(ctx context.Context, user domain.UserRef) error {
	if err := p.tracker.TrackUserJobs(ctx, user.GithubLogin, initialUserJobs); err != nil {
		return fmt.Errorf("failed to track user jobs: %w", err)
	}

	jobs := []*domain.CollectionJob{
		p.newJob(domain.JobTypeUserBasic, user, priorityUserBasic),
		p.newJob(domain.JobTypeUserEvents, user, priorityUserEvents),
	}
	for _, job := range jobs {
		if err := p.store.EnqueueJob(ctx, job); err != nil {
			// Unwind the primed counter so the run is not tracked forever.
			// Any job that did land decrements a missing counter, which is
			// a no-op.
			if uerr := p.tracker.UntrackUserJobs(ctx, user.GithubLogin); uerr != nil {
				slog.Error("failed to untrack user jobs after enqueue failure", "login", user.GithubLogin, "error", uerr)
			}
			return fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
		}
	}
	slog.Info("enqueued user collection", "login", user.GithubLogin, "jobs", len(jobs))
	return nil
}

// EnqueueRepositoryCollection fans out the three per-repository jobs for
// one discovered repository. The counter increment lands before the jobs
// are enqueued, for the same ordering reason as EnqueueUserCollection.
func (p *Producer) EnqueueRepositoryCollection(ctx context.Context, user domain.UserRef, owner, name string) error {
	if err := p.tracker.IncrementJobCount(ctx, user.GithubLogin, 3); err != nil {
		return fmt.Errorf("failed to increment job count: %w", err)
	}

	jobs := []*domain.CollectionJob{
		p.newRepoJob(domain.JobTypeRepoIssues, user, owner, name, priorityRepoMeta),
		p.newRepoJob(domain.JobTypeRepoPRs, user, owner, name, priorityRepoMeta),
		p.newRepoJob(domain.JobTypeRepoCommits, user, owner, name, priorityRepoCommit),
	}
	for i, job := range jobs {
		if err := p.store.EnqueueJob(ctx, job); err != nil {
			// Give back the increments for the jobs that never landed; the
			// ones that did will decrement on completion as usual.
			if cerr := p.tracker.IncrementJobCount(ctx, user.GithubLogin, -(len(jobs) - i)); cerr != nil {
				slog.Error("failed to unwind job count after enqueue failure", "login", user.GithubLogin, "error", cerr)
			}
			return fmt.Errorf("failed to enqueue %s job for %s/%s: %w", job.Type, owner, name, err)
		}
	}
	slog.Debug("enqueued repository collection", "login", user.GithubLogin, "repo", owner+"/"+name)
	return nil
}

func (p *Producer) newJob(jobType domain.JobType, user domain.UserRef, priority int) *domain.CollectionJob {
	now := time.Now().UTC()
	return &domain.CollectionJob{
		ID:             uuid.New().String(),
		Type:           jobType,
		UserID:         user.UserID,
		GithubLogin:    user.GithubLogin,
		EncryptedToken: user.EncryptedToken,
		Priority:       priority,
		MaxRetries:     p.maxRetries,
		Partition:      domain.PartitionQueued,
		ScheduledAt:    now,
		CreatedAt:      now,
	}
}

func (p *Producer) newRepoJob(jobType domain.JobType, user domain.UserRef, owner, name string, priority int) *domain.CollectionJob {
	job := p.newJob(jobType, user, priority)
	job.RepoOwner = owner
	job.RepoName = name
	return job
}
