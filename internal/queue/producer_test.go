package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/storage"
	"github.com/campuscode-io/github-harvester/internal/storage/memory"
)

// flakyEnqueueStore lets a fixed number of EnqueueJob calls through and
// fails the rest.
type flakyEnqueueStore struct {
	storage.Storage
	allow int
	calls int
}

func (s *flakyEnqueueStore) EnqueueJob(ctx context.Context, job *domain.CollectionJob) error {
	s.calls++
	if s.calls > s.allow {
		return errors.New("queue table unavailable")
	}
	return s.Storage.EnqueueJob(ctx, job)
}

func TestProducerEnqueuesUserCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	tracker := NewCompletionTracker(store, &fakeTrigger{}, time.Minute)
	producer := NewProducer(store, tracker, 3)

	require.NoError(t, producer.EnqueueUserCollection(ctx, domain.UserRef{UserID: 42, GithubLogin: "octocat"}))

	count, existed, err := store.GetJobCounter(ctx, "octocat")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 2, count)

	queued, err := store.JobsByPartition(ctx, domain.PartitionQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	types := []domain.JobType{queued[0].Type, queued[1].Type}
	assert.ElementsMatch(t, []domain.JobType{domain.JobTypeUserBasic, domain.JobTypeUserEvents}, types)
}

func TestProducerUnwindsCounterWhenEnqueueFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyEnqueueStore{Storage: memory.NewMemoryStorage(), allow: 1}
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)
	producer := NewProducer(store, tracker, 3)

	err := producer.EnqueueUserCollection(ctx, domain.UserRef{UserID: 42, GithubLogin: "octocat"})
	require.Error(t, err)

	// The primed counter and in-flight entry must not outlive the failed
	// enqueue, or the run would be tracked forever.
	_, existed, gerr := store.GetJobCounter(ctx, "octocat")
	require.NoError(t, gerr)
	assert.False(t, existed)
	assert.Empty(t, tracker.InflightLogins())
	assert.Equal(t, 0, trigger.callCount())
}

func TestProducerUnwindsRepoFanOutWhenEnqueueFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyEnqueueStore{Storage: memory.NewMemoryStorage(), allow: 1}
	tracker := NewCompletionTracker(store, &fakeTrigger{}, time.Minute)
	producer := NewProducer(store, tracker, 3)
	user := domain.UserRef{UserID: 42, GithubLogin: "octocat"}

	// One job from the initial run is still outstanding.
	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 1))

	err := producer.EnqueueRepositoryCollection(ctx, user, "octocat", "hello-world")
	require.Error(t, err)

	// The counter keeps the outstanding job plus the one repo job that
	// landed; the increments for the two that never landed are given back.
	count, existed, gerr := store.GetJobCounter(ctx, "octocat")
	require.NoError(t, gerr)
	assert.True(t, existed)
	assert.Equal(t, 2, count)
}
