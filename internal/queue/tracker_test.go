package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/storage/memory"
)

type fakeTrigger struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTrigger) RecalculateUser(ctx context.Context, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, login)
	return nil
}

func (f *fakeTrigger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestTrackerFiresExactlyOnceAtZero(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 2))

	require.NoError(t, tracker.DecrementJobCount(ctx, "octocat"))
	assert.Equal(t, 0, trigger.callCount())

	require.NoError(t, tracker.DecrementJobCount(ctx, "octocat"))
	assert.Equal(t, 1, trigger.callCount())

	// The counter is gone; a late decrement cannot re-fire.
	require.NoError(t, tracker.DecrementJobCount(ctx, "octocat"))
	assert.Equal(t, 1, trigger.callCount())

	_, existed, err := store.GetJobCounter(ctx, "octocat")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestTrackerIncrementExtendsRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 2))
	require.NoError(t, tracker.IncrementJobCount(ctx, "octocat", 3))

	for i := 0; i < 4; i++ {
		require.NoError(t, tracker.DecrementJobCount(ctx, "octocat"))
		assert.Equal(t, 0, trigger.callCount(), "fired after %d of 5 decrements", i+1)
	}
	require.NoError(t, tracker.DecrementJobCount(ctx, "octocat"))
	assert.Equal(t, 1, trigger.callCount())
}

func TestTrackerZeroRepositoryRun(t *testing.T) {
	// Discovery found nothing: the two initial jobs alone complete the run.
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "lurker", 2))
	require.NoError(t, tracker.DecrementJobCount(ctx, "lurker"))
	require.NoError(t, tracker.DecrementJobCount(ctx, "lurker"))
	assert.Equal(t, []string{"lurker"}, trigger.calls)
}

func TestTrackerSweepRecoversMissedCompletion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 1))

	// Simulate a missed notification: the counter row vanished but the
	// login is still marked in flight.
	require.NoError(t, store.DeleteJobCounter(ctx, "octocat"))

	tracker.Sweep(ctx)
	assert.Equal(t, 1, trigger.callCount())
	assert.Empty(t, tracker.InflightLogins())

	// A second sweep is a no-op.
	tracker.Sweep(ctx)
	assert.Equal(t, 1, trigger.callCount())
}

func TestTrackerRacingCompletersFireOnce(t *testing.T) {
	// A decrement that reached zero and the sweep can both attempt
	// completion before either deletes the counter. The conditional
	// delete lets only one of them fire.
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 1))
	require.NoError(t, store.SetJobCounter(ctx, "octocat", 0))

	require.NoError(t, tracker.complete(ctx, "octocat"))
	require.NoError(t, tracker.complete(ctx, "octocat"))
	assert.Equal(t, 1, trigger.callCount())
}

func TestTrackerCompleteYieldsToLateIncrement(t *testing.T) {
	// Discovery added jobs between the zero observation and the delete.
	// The counter survives and the trigger waits for the real completion.
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 3))

	require.NoError(t, tracker.complete(ctx, "octocat"))
	assert.Equal(t, 0, trigger.callCount())

	count, existed, err := store.GetJobCounter(ctx, "octocat")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 3, count)
	assert.Contains(t, tracker.InflightLogins(), "octocat")
}

func TestTrackerSweepCompletesStalledZeroCounter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	trigger := &fakeTrigger{}
	tracker := NewCompletionTracker(store, trigger, time.Minute)

	require.NoError(t, tracker.TrackUserJobs(ctx, "octocat", 1))
	require.NoError(t, store.SetJobCounter(ctx, "octocat", 0))

	tracker.Sweep(ctx)
	assert.Equal(t, 1, trigger.callCount())

	_, existed, err := store.GetJobCounter(ctx, "octocat")
	require.NoError(t, err)
	assert.False(t, existed)
}
