package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/collector"
	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/storage/memory"
)

// fakeStage records whether it executed and can fail, declare preconditions
// or mutate the execution context.
type fakeStage struct {
	name     string
	requires []string
	err      error
	onRun    func(ec *ExecutionContext)
	executed bool
}

func (s *fakeStage) Name() string       { return s.name }
func (s *fakeStage) Requires() []string { return s.requires }
func (s *fakeStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	s.executed = true
	if s.onRun != nil {
		s.onRun(ec)
	}
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Written: 1}, nil
}

func testUser() domain.UserRef {
	return domain.UserRef{UserID: 42, GithubLogin: "octocat"}
}

func TestRunExecutesAllStagesInOrder(t *testing.T) {
	var order []string
	mk := func(name string) *fakeStage {
		return &fakeStage{name: name, onRun: func(*ExecutionContext) { order = append(order, name) }}
	}
	first, second, third := mk("first"), mk("second"), mk("third")

	err := New(first, second, third).Run(context.Background(), testUser(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRunSeedsIdentityKeys(t *testing.T) {
	probe := &fakeStage{name: "probe", onRun: func(ec *ExecutionContext) {
		login, err := ec.RequireString(KeyLogin)
		assert.NoError(t, err)
		assert.Equal(t, "octocat", login)
		userID, err := ec.RequireInt64(KeyUserID)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), userID)
		token, err := ec.RequireString(KeyToken)
		assert.NoError(t, err)
		assert.Equal(t, "tok", token)
	}}

	require.NoError(t, New(probe).Run(context.Background(), testUser(), "tok"))
	assert.True(t, probe.executed)
}

func TestRunFailureSkipsForwardToLastStage(t *testing.T) {
	boom := errors.New("upstream unavailable")
	failing := &fakeStage{name: "discovery", err: boom}
	middle := &fakeStage{name: "mining"}
	last := &fakeStage{name: "cleanup"}

	err := New(failing, middle, last).Run(context.Background(), testUser(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage discovery failed")

	assert.True(t, failing.executed)
	assert.False(t, middle.executed, "stages after a failure must be skipped")
	assert.True(t, last.executed, "the final stage always runs")
}

func TestRunReportsFirstFailureOnly(t *testing.T) {
	first := &fakeStage{name: "first", err: errors.New("first failure")}
	last := &fakeStage{name: "last", err: errors.New("last failure")}

	err := New(first, last).Run(context.Background(), testUser(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failure")
}

func TestRunPreconditionFailureNamesStageAndKey(t *testing.T) {
	needy := &fakeStage{name: "commit-mining", requires: []string{KeyDiscoveredRepos}}
	last := &fakeStage{name: "cleanup"}

	err := New(needy, last).Run(context.Background(), testUser(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit-mining")
	assert.Contains(t, err.Error(), KeyDiscoveredRepos)
	assert.False(t, needy.executed)
	assert.True(t, last.executed)
}

func TestRunFinalStagePreconditionFailureSkipsExecution(t *testing.T) {
	first := &fakeStage{name: "discovery"}
	last := &fakeStage{name: "cleanup", requires: []string{KeyDiscoveredRepos}}

	err := New(first, last).Run(context.Background(), testUser(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup")
	assert.Contains(t, err.Error(), KeyDiscoveredRepos)
	assert.True(t, first.executed)
	assert.False(t, last.executed, "a stage with unmet preconditions must not execute")
}

func TestRunPreconditionSatisfiedByEarlierStage(t *testing.T) {
	producer := &fakeStage{name: "discovery", onRun: func(ec *ExecutionContext) {
		ec.Set(KeyDiscoveredRepos, []string{"octocat/hello-world"})
	}}
	consumer := &fakeStage{name: "mining", requires: []string{KeyDiscoveredRepos}}

	require.NoError(t, New(producer, consumer).Run(context.Background(), testUser(), "tok"))
	assert.True(t, consumer.executed)
}

func TestExecutionContextRequireErrors(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("count", 7)

	_, err := ec.RequireString("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"absent"`)

	_, err = ec.RequireString("count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected string")

	_, err = ec.RequireInt64("count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected int64")

	_, err = ec.RequireStrings("count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected []string")
}

func TestExecutionContextDelete(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set(KeyToken, "secret")
	require.True(t, ec.Has(KeyToken))
	ec.Delete(KeyToken)
	assert.False(t, ec.Has(KeyToken))
}

func TestCleanupStageDropsTokenAndPrunes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()

	// A completed job that will age past the retention window.
	old := &domain.CollectionJob{
		ID: "old", Type: domain.JobTypeUserBasic, GithubLogin: "u",
		ScheduledAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.EnqueueJob(ctx, old))
	claimed, err := store.DequeueJob(ctx)
	require.NoError(t, err)
	require.NoError(t, store.CompleteJob(ctx, claimed))
	stored, err := store.GetJob(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)

	stage := NewCleanupStage(store, time.Nanosecond)
	ec := NewExecutionContext()
	ec.Set(KeyToken, "secret")

	time.Sleep(10 * time.Millisecond)
	res, err := stage.Execute(ctx, ec)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.False(t, ec.Has(KeyToken))

	_, err = store.GetJob(ctx, "old")
	assert.Error(t, err)
}

func TestChallengeEvaluationStageWithoutEvaluator(t *testing.T) {
	stage := NewChallengeEvaluationStage(nil)
	ec := NewExecutionContext()
	ec.Set(KeyLogin, "octocat")

	res, err := stage.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)
}

// stubCollector counts per-repo commit harvests.
type stubCollector struct {
	commitRepos []string
}

func (c *stubCollector) DiscoverRepositories(ctx context.Context, user domain.UserRef) ([]string, error) {
	return nil, nil
}

func (c *stubCollector) CollectUserBasic(ctx context.Context, user domain.UserRef) error {
	return nil
}

func (c *stubCollector) CollectUserEvents(ctx context.Context, user domain.UserRef) (int, error) {
	return 0, nil
}

func (c *stubCollector) CollectCommits(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	c.commitRepos = append(c.commitRepos, owner+"/"+name)
	return 2, nil
}

func (c *stubCollector) CollectPullRequests(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	return 0, nil
}

func (c *stubCollector) CollectIssues(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	return 0, nil
}

func TestMiningStageSkipsMalformedRepoNames(t *testing.T) {
	coll := &stubCollector{}
	stage := NewCommitMiningStage(func(ctx context.Context, token string) collector.Collector {
		return coll
	})

	ec := NewExecutionContext()
	ec.Set(KeyLogin, "octocat")
	ec.Set(KeyUserID, int64(42))
	ec.Set(KeyToken, "tok")
	ec.Set(KeyDiscoveredRepos, []string{"octocat/hello-world", "not-a-full-name", "octocat/spoon-knife"})

	res, err := stage.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Read)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 4, res.Written)
	assert.Equal(t, []string{"octocat/hello-world", "octocat/spoon-knife"}, coll.commitRepos)
}
