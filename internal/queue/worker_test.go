package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/collector"
	"github.com/campuscode-io/github-harvester/internal/crypto"
	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/storage"
	"github.com/campuscode-io/github-harvester/internal/storage/memory"
)

const testEncryptionKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type fakeCollector struct {
	mu         sync.Mutex
	discovered []string
	basicErr   error
	eventsErr  error
	commitsErr error
	prsErr     error
	issuesErr  error
	calls      map[string]int
}

func newFakeCollector(discovered ...string) *fakeCollector {
	return &fakeCollector{discovered: discovered, calls: make(map[string]int)}
}

func (f *fakeCollector) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeCollector) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeCollector) DiscoverRepositories(ctx context.Context, user domain.UserRef) ([]string, error) {
	f.record("discover")
	return f.discovered, nil
}

func (f *fakeCollector) CollectUserBasic(ctx context.Context, user domain.UserRef) error {
	f.record("basic")
	return f.basicErr
}

func (f *fakeCollector) CollectUserEvents(ctx context.Context, user domain.UserRef) (int, error) {
	f.record("events")
	return 0, f.eventsErr
}

func (f *fakeCollector) CollectCommits(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	f.record("commits")
	return 0, f.commitsErr
}

func (f *fakeCollector) CollectPullRequests(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	f.record("prs")
	return 0, f.prsErr
}

func (f *fakeCollector) CollectIssues(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	f.record("issues")
	return 0, f.issuesErr
}

type workerHarness struct {
	store     storage.Storage
	trigger   *fakeTrigger
	tracker   *CompletionTracker
	producer  *Producer
	worker    *Worker
	collector *fakeCollector
	encryptor crypto.TokenEncryptor
}

func newWorkerHarness(t *testing.T, fc *fakeCollector) *workerHarness {
	t.Helper()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)
	producer := NewProducer(store, tracker, 5)
	encryptor, err := crypto.NewTokenEncryptor(testEncryptionKey)
	require.NoError(t, err)

	factory := collector.Factory(func(ctx context.Context, token string) collector.Collector {
		return fc
	})
	worker := NewWorker(store, tracker, producer, encryptor, factory, nil, time.Millisecond)

	return &workerHarness{
		store:     store,
		trigger:   trigger,
		tracker:   tracker,
		producer:  producer,
		worker:    worker,
		collector: fc,
		encryptor: encryptor,
	}
}

func (h *workerHarness) userRef(t *testing.T, login string) domain.UserRef {
	t.Helper()
	encrypted, err := h.encryptor.Encrypt("ghp_testtoken")
	require.NoError(t, err)
	return domain.UserRef{UserID: 42, GithubLogin: login, EncryptedToken: encrypted}
}

func TestWorkerDrainsFullUserRun(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCollector("octocat/alpha")
	h := newWorkerHarness(t, fc)

	require.NoError(t, h.producer.EnqueueUserCollection(ctx, h.userRef(t, "octocat")))

	// 2 initial jobs plus the 3-job fan-out for the discovered repository.
	for i := 0; i < 5; i++ {
		h.worker.Tick(ctx)
	}

	counts, err := h.store.PartitionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[domain.PartitionCompleted])
	assert.Equal(t, 0, counts[domain.PartitionQueued])

	assert.Equal(t, 1, fc.callCount("basic"))
	assert.Equal(t, 1, fc.callCount("discover"))
	assert.Equal(t, 1, fc.callCount("events"))
	assert.Equal(t, 1, fc.callCount("commits"))
	assert.Equal(t, 1, fc.callCount("prs"))
	assert.Equal(t, 1, fc.callCount("issues"))

	assert.Equal(t, []string{"octocat"}, h.trigger.calls)
}

func TestWorkerPriorityOrder(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCollector("octocat/alpha")
	h := newWorkerHarness(t, fc)

	require.NoError(t, h.producer.EnqueueUserCollection(ctx, h.userRef(t, "octocat")))

	// First tick must take the profile job, second the event job.
	h.worker.Tick(ctx)
	assert.Equal(t, 1, fc.callCount("basic"))
	assert.Equal(t, 0, fc.callCount("events"))

	h.worker.Tick(ctx)
	assert.Equal(t, 1, fc.callCount("events"))

	// Issue and PR jobs (priority 3) drain before the commit job (4).
	h.worker.Tick(ctx)
	h.worker.Tick(ctx)
	assert.Equal(t, 0, fc.callCount("commits"))
	h.worker.Tick(ctx)
	assert.Equal(t, 1, fc.callCount("commits"))
}

func enqueueRepoJob(t *testing.T, h *workerHarness, login string, retryCount, maxRetries int) *domain.CollectionJob {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.tracker.TrackUserJobs(ctx, login, 1))

	user := h.userRef(t, login)
	job := &domain.CollectionJob{
		ID:             "job-1",
		Type:           domain.JobTypeRepoCommits,
		UserID:         user.UserID,
		GithubLogin:    login,
		RepoOwner:      "octocat",
		RepoName:       "alpha",
		EncryptedToken: user.EncryptedToken,
		Priority:       4,
		RetryCount:     retryCount,
		MaxRetries:     maxRetries,
		Partition:      domain.PartitionQueued,
		ScheduledAt:    time.Now().UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, h.store.EnqueueJob(ctx, job))
	return job
}

func TestWorkerRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCollector()
	fc.commitsErr = apperrors.NewRetryableError("upstream timeout", nil)
	h := newWorkerHarness(t, fc)

	enqueueRepoJob(t, h, "octocat", 0, 5)
	h.worker.Tick(ctx)

	job, err := h.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionQueued, job.Partition)
	assert.Equal(t, 1, job.RetryCount)
	assert.Contains(t, job.LastError, "upstream timeout")
	assert.True(t, job.ScheduledAt.After(time.Now().UTC()), "backoff must push the job into the future")

	// Not terminal: the run is still open.
	assert.Equal(t, 0, h.trigger.callCount())
}

func TestWorkerDeadLettersAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCollector()
	fc.commitsErr = apperrors.NewRetryableError("upstream timeout", nil)
	h := newWorkerHarness(t, fc)

	enqueueRepoJob(t, h, "octocat", 4, 5)
	h.worker.Tick(ctx)

	job, err := h.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionFailed, job.Partition)
	assert.Equal(t, 5, job.RetryCount)

	// Dead-lettering still completes the run.
	assert.Equal(t, 1, h.trigger.callCount())
}

func TestWorkerDeadLettersNonRetryable(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCollector()
	fc.commitsErr = apperrors.NewNonRetryableError("repository gone", nil)
	h := newWorkerHarness(t, fc)

	enqueueRepoJob(t, h, "octocat", 0, 5)
	h.worker.Tick(ctx)

	job, err := h.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionFailed, job.Partition)
	assert.Equal(t, 1, h.trigger.callCount())
}

func TestWorkerReschedulesRateLimitedWithoutBurningRetry(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCollector()
	fc.commitsErr = apperrors.NewRateLimitedError("API rate limit exceeded")
	h := newWorkerHarness(t, fc)

	enqueueRepoJob(t, h, "octocat", 0, 5)
	h.worker.Tick(ctx)

	job, err := h.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionQueued, job.Partition)
	assert.Equal(t, 0, job.RetryCount, "rate limiting must not consume the retry budget")
	assert.True(t, job.ScheduledAt.After(time.Now().UTC()))
	assert.Equal(t, 0, h.trigger.callCount())
}

func TestWorkerTickWithEmptyQueue(t *testing.T) {
	fc := newFakeCollector()
	h := newWorkerHarness(t, fc)
	h.worker.Tick(context.Background())
	assert.Equal(t, 0, fc.callCount("basic"))
}
