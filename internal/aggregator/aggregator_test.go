package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/storage"
	"github.com/campuscode-io/github-harvester/internal/storage/memory"
)

const testZone = "Asia/Seoul"

func newTestAggregator(t *testing.T, store storage.Storage, threshold int) Aggregator {
	t.Helper()
	agg, err := NewAggregator(store, testZone, threshold)
	require.NoError(t, err)
	return agg
}

func seedCommit(t *testing.T, store storage.Storage, login, repo, sha string, at time.Time, additions, deletions int) {
	t.Helper()
	owner, name, ok := domain.SplitRepoFullName(repo)
	require.True(t, ok)
	require.NoError(t, store.SaveCommit(context.Background(), &domain.CommitDocument{
		UserID:      42,
		GithubLogin: login,
		SHA:         sha,
		RepoOwner:   owner,
		RepoName:    name,
		AuthoredAt:  at,
		Additions:   additions,
		Deletions:   deletions,
		CollectedAt: time.Now().UTC(),
	}))
}

func seedRepo(t *testing.T, store storage.Storage, login, fullName string, isOwner bool, stars, forks int) {
	t.Helper()
	owner, name, ok := domain.SplitRepoFullName(fullName)
	require.True(t, ok)
	require.NoError(t, store.SaveRepository(context.Background(), &domain.RepositoryDocument{
		UserID:      42,
		GithubLogin: login,
		Owner:       owner,
		Name:        name,
		FullName:    fullName,
		IsOwner:     isOwner,
		Stars:       stars,
		Forks:       forks,
		CollectedAt: time.Now().UTC(),
	}))
}

func TestNightCommitBoundaries(t *testing.T) {
	loc, err := time.LoadLocation(testZone)
	require.NoError(t, err)

	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)

	// Four commits straddling both boundaries of the 22:00-06:00 window.
	seedCommit(t, store, "owl", "owl/nest", "sha-2159", time.Date(2026, 3, 1, 21, 59, 0, 0, loc), 1, 0)
	seedCommit(t, store, "owl", "owl/nest", "sha-2200", time.Date(2026, 3, 1, 22, 0, 0, 0, loc), 1, 0)
	seedCommit(t, store, "owl", "owl/nest", "sha-0559", time.Date(2026, 3, 2, 5, 59, 0, 0, loc), 1, 0)
	seedCommit(t, store, "owl", "owl/nest", "sha-0600", time.Date(2026, 3, 2, 6, 0, 0, 0, loc), 1, 0)

	require.NoError(t, agg.RecalculateUser(context.Background(), "owl"))

	stats, err := store.GetUserStatistics(context.Background(), "owl")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalCommits)
	assert.Equal(t, 2, stats.NightCommits, "22:00 and 05:59 are night")
	assert.Equal(t, 2, stats.DayCommits, "21:59 and 06:00 are day")
}

func TestOwnedContributedSplitAndReputation(t *testing.T) {
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)

	seedRepo(t, store, "octocat", "octocat/mine", true, 10, 2)
	seedRepo(t, store, "octocat", "octocat/also-mine", true, 5, 1)
	seedRepo(t, store, "octocat", "upstream/theirs", false, 9000, 400)

	require.NoError(t, agg.RecalculateUser(context.Background(), "octocat"))

	stats, err := store.GetUserStatistics(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OwnedRepos)
	assert.Equal(t, 1, stats.ContributedRepos)
	// Stars and forks on contributed repos do not count.
	assert.Equal(t, 15, stats.TotalStars)
	assert.Equal(t, 3, stats.TotalForks)
	assert.InDelta(t, 15*10+3*20, stats.ReputationScore, 0.001)
}

func TestScoreSplitsMainAndOtherRepos(t *testing.T) {
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Commit counts per repo: alpha 3, beta 2, gamma 2, delta 1.
	// Top three by count: alpha, beta, gamma; delta scores at the low rate.
	repoCommits := map[string]int{"u/alpha": 3, "u/beta": 2, "u/gamma": 2, "u/delta": 1}
	for repo, n := range repoCommits {
		for i := 0; i < n; i++ {
			seedCommit(t, store, "u", repo, repo+"-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour), 10, 5)
		}
	}

	require.NoError(t, agg.RecalculateUser(context.Background(), "u"))

	stats, err := store.GetUserStatistics(context.Background(), "u")
	require.NoError(t, err)

	// Each commit carries 15 changed lines.
	wantMain := float64(3+2+2)*15.0 + float64((3+2+2)*15)*0.02
	wantOther := 1*5.0 + float64(1*15)*0.01
	assert.InDelta(t, wantMain, stats.MainRepoScore, 0.001)
	assert.InDelta(t, wantOther, stats.OtherRepoScore, 0.001)
	assert.InDelta(t, wantMain+wantOther, stats.TotalScore, 0.001)
}

func TestPRIssueScore(t *testing.T) {
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)
	now := time.Now().UTC()

	require.NoError(t, store.SavePullRequest(context.Background(), &domain.PullRequestDocument{
		UserID: 42, GithubLogin: "u", Number: 1, RepoOwner: "o", RepoName: "r", OpenedAt: now, CollectedAt: now,
	}))
	require.NoError(t, store.SaveIssue(context.Background(), &domain.IssueDocument{
		UserID: 42, GithubLogin: "u", Number: 1, RepoOwner: "o", RepoName: "r", OpenedAt: now, CollectedAt: now,
	}))
	require.NoError(t, store.SaveIssue(context.Background(), &domain.IssueDocument{
		UserID: 42, GithubLogin: "u", Number: 2, RepoOwner: "o", RepoName: "r", OpenedAt: now, CollectedAt: now,
	}))

	require.NoError(t, agg.RecalculateUser(context.Background(), "u"))

	stats, err := store.GetUserStatistics(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPRs)
	assert.Equal(t, 2, stats.TotalIssues)
	assert.InDelta(t, 1*50.0+2*30.0, stats.PRIssueScore, 0.001)
}

func TestPeriodBounds(t *testing.T) {
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)

	first := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	last := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	seedCommit(t, store, "u", "u/r", "s1", last, 1, 0)
	seedCommit(t, store, "u", "u/r", "s2", first, 1, 0)
	seedCommit(t, store, "u", "u/r", "s3", first.AddDate(0, 2, 0), 1, 0)

	require.NoError(t, agg.RecalculateUser(context.Background(), "u"))

	stats, err := store.GetUserStatistics(context.Background(), "u")
	require.NoError(t, err)
	require.NotNil(t, stats.PeriodStart)
	require.NotNil(t, stats.PeriodEnd)
	assert.True(t, stats.PeriodStart.Equal(first))
	assert.True(t, stats.PeriodEnd.Equal(last))
}

func TestEmptyUserStillGetsRow(t *testing.T) {
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)

	require.NoError(t, agg.RecalculateUser(context.Background(), "ghost"))

	stats, err := store.GetUserStatistics(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalCommits)
	assert.Nil(t, stats.PeriodStart)
	assert.Zero(t, stats.TotalScore)
}

func TestPlatformRecomputeThreshold(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 2)

	// One user: 1 - 0 < 2, no platform row yet.
	require.NoError(t, agg.RecalculateUser(ctx, "user-a"))
	_, err := store.GetPlatformStatistics(ctx)
	assert.True(t, apperrors.IsNotFound(err))

	// Second user crosses the threshold: baseline advances to 2.
	require.NoError(t, agg.RecalculateUser(ctx, "user-b"))
	platform, err := store.GetPlatformStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, platform.TotalUserCount)
	firstUpdate := platform.UpdatedAt

	// Third user: 3 - 2 < 2, the rollup stays put.
	require.NoError(t, agg.RecalculateUser(ctx, "user-c"))
	platform, err = store.GetPlatformStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, platform.TotalUserCount)
	assert.True(t, platform.UpdatedAt.Equal(firstUpdate))
}

func TestPlatformAverages(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 1)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedCommit(t, store, "a", "a/r", "a1", base, 1, 0)
	seedCommit(t, store, "a", "a/r", "a2", base, 1, 0)
	require.NoError(t, agg.RecalculateUser(ctx, "a"))

	seedCommit(t, store, "b", "b/r", "b1", base, 1, 0)
	require.NoError(t, agg.RecalculateUser(ctx, "b"))

	platform, err := store.GetPlatformStatistics(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, platform.AvgCommits, 0.001)
	assert.Equal(t, 2, platform.TotalUserCount)
}

func TestRebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)

	seedCommit(t, store, "u", "u/r", "s1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 7, 3)
	require.NoError(t, agg.RecalculateUser(ctx, "u"))
	first, err := store.GetUserStatistics(ctx, "u")
	require.NoError(t, err)

	require.NoError(t, agg.RecalculateUser(ctx, "u"))
	second, err := store.GetUserStatistics(ctx, "u")
	require.NoError(t, err)

	assert.Equal(t, first.TotalCommits, second.TotalCommits)
	assert.Equal(t, first.TotalLines, second.TotalLines)
	assert.InDelta(t, first.TotalScore, second.TotalScore, 0.001)
}

func TestScoreStagesMatchOneShotRebuild(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	agg := newTestAggregator(t, store, 100)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedCommit(t, store, "u", "u/r", "s1", base, 10, 2)
	seedCommit(t, store, "u", "u/r", "s2", base, 4, 4)

	require.NoError(t, agg.RebuildUserCounts(ctx, "u"))
	counted, err := store.GetUserStatistics(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, counted.TotalScore, "counts-only rebuild must not score")

	require.NoError(t, agg.RecalculateScores(ctx, "u"))
	staged, err := store.GetUserStatistics(ctx, "u")
	require.NoError(t, err)

	require.NoError(t, agg.RecalculateUser(ctx, "u"))
	oneShot, err := store.GetUserStatistics(ctx, "u")
	require.NoError(t, err)

	assert.InDelta(t, oneShot.TotalScore, staged.TotalScore, 0.001)
	assert.InDelta(t, oneShot.MainRepoScore, staged.MainRepoScore, 0.001)
}
