package storage

import (
	"context"
	"time"

	"github.com/campuscode-io/github-harvester/internal/domain"
)

// Storage is the abstract interface for the persistence layer: the raw
// document store, the durable job queue with its four partitions, the shared
// per-user job counters and the statistics rollups.
type Storage interface {
	// Raw document operations. Saves are inserts; existence checks by the
	// natural key per user make re-collection idempotent.
	SaveCommit(ctx context.Context, doc *domain.CommitDocument) error
	CommitExists(ctx context.Context, userID int64, sha string) (bool, error)
	SavePullRequest(ctx context.Context, doc *domain.PullRequestDocument) error
	PullRequestExists(ctx context.Context, userID int64, repoOwner, repoName string, number int) (bool, error)
	SaveIssue(ctx context.Context, doc *domain.IssueDocument) error
	IssueExists(ctx context.Context, userID int64, repoOwner, repoName string, number int) (bool, error)
	SaveRepository(ctx context.Context, doc *domain.RepositoryDocument) error
	SaveUserProfile(ctx context.Context, doc *domain.UserProfileDocument) error

	// Raw document retrieval for aggregation.
	CommitsByLogin(ctx context.Context, login string) ([]*domain.CommitDocument, error)
	RepositoriesByLogin(ctx context.Context, login string) ([]*domain.RepositoryDocument, error)
	CountPullRequestsByLogin(ctx context.Context, login string) (int, error)
	CountIssuesByLogin(ctx context.Context, login string) (int, error)

	// Durable job queue. DequeueJob atomically claims exactly one due job
	// (queued -> processing); two concurrent workers never claim the same
	// job. Partitions: queued, processing, completed, failed.
	EnqueueJob(ctx context.Context, job *domain.CollectionJob) error
	DequeueJob(ctx context.Context) (*domain.CollectionJob, error)
	CompleteJob(ctx context.Context, job *domain.CollectionJob) error
	FailJob(ctx context.Context, job *domain.CollectionJob) error
	RequeueJob(ctx context.Context, job *domain.CollectionJob, delay time.Duration) error
	GetJob(ctx context.Context, id string) (*domain.CollectionJob, error)
	DeleteJob(ctx context.Context, id string) error
	JobsByPartition(ctx context.Context, partition domain.JobPartition) ([]*domain.CollectionJob, error)
	PartitionCounts(ctx context.Context) (map[domain.JobPartition]int, error)
	RetryFailedJob(ctx context.Context, id string) error
	RetryAllFailedJobs(ctx context.Context) (int, error)
	PruneCompletedJobs(ctx context.Context, olderThan time.Time) (int, error)

	// Per-user job counters. AddJobCounter applies the delta atomically and
	// returns the remaining count; existed reports whether the counter row
	// was present at all. DeleteJobCounterIfDone removes the row only when
	// remaining is at or below zero and reports whether this call removed it,
	// so two racing completers cannot both observe a successful delete.
	SetJobCounter(ctx context.Context, login string, count int) error
	AddJobCounter(ctx context.Context, login string, delta int) (remaining int, existed bool, err error)
	GetJobCounter(ctx context.Context, login string) (count int, existed bool, err error)
	DeleteJobCounter(ctx context.Context, login string) error
	DeleteJobCounterIfDone(ctx context.Context, login string) (deleted bool, err error)

	// Statistics rollups.
	UpsertUserStatistics(ctx context.Context, stats *domain.UserStatistics) error
	GetUserStatistics(ctx context.Context, githubID string) (*domain.UserStatistics, error)
	CountUserStatistics(ctx context.Context) (int, error)
	UserStatisticsAverages(ctx context.Context) (*domain.PlatformAverages, error)
	GetPlatformStatistics(ctx context.Context) (*domain.PlatformStatistics, error)
	UpsertPlatformStatistics(ctx context.Context, stats *domain.PlatformStatistics) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
