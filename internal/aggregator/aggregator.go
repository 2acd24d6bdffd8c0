// Package aggregator rebuilds the per-user statistics rollup from the raw
// document store and maintains the platform-wide averages.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// Scoring weights. Main repositories are the user's top three by commit
// count; everything else scores at the reduced rate.
const (
	mainRepoCount    = 3
	mainCommitScore  = 15.0
	mainLineScore    = 0.02
	otherCommitScore = 5.0
	otherLineScore   = 0.01
	pullRequestScore = 50.0
	issueScore       = 30.0
	starScore        = 10.0
	forkScore        = 20.0
	nightStartHour   = 22
	nightEndHour     = 6
)

// Aggregator recomputes statistics rollups. RecalculateUser is the one-shot
// path used after a queue run completes; the finer-grained methods back the
// individual pipeline stages.
type Aggregator interface {
	// RecalculateUser rebuilds one user's counts and scores from scratch
	// and conditionally refreshes the platform averages.
	RecalculateUser(ctx context.Context, login string) error

	// RebuildUserCounts rebuilds the count figures only, leaving scores at
	// zero until RecalculateScores runs.
	RebuildUserCounts(ctx context.Context, login string) error

	// RecalculateScores recomputes the activity scores on an existing
	// statistics row.
	RecalculateScores(ctx context.Context, login string) error

	// MaybeRecalculatePlatform refreshes the platform averages when enough
	// new users accumulated past the recorded baseline.
	MaybeRecalculatePlatform(ctx context.Context) error

	// RecalculatePlatform recomputes the platform-wide averages
	// unconditionally.
	RecalculatePlatform(ctx context.Context) error
}

type aggregator struct {
	store     storage.Storage
	location  *time.Location
	threshold int
}

// NewAggregator creates an aggregator. timezone is the IANA zone used for
// the night/day commit split; threshold is the number of new users that
// must accumulate before the platform averages are refreshed.
func NewAggregator(store storage.Storage, timezone string, threshold int) (Aggregator, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid statistics timezone %q: %w", timezone, err)
	}
	return &aggregator{store: store, location: loc, threshold: threshold}, nil
}

// RecalculateUser is a full rebuild: every figure is recomputed from the
// raw documents, so re-running after a partial harvest self-corrects.
func (a *aggregator) RecalculateUser(ctx context.Context, login string) error {
	stats, commits, err := a.buildCounts(ctx, login)
	if err != nil {
		return err
	}
	a.applyScores(stats, commits)

	if err := a.store.UpsertUserStatistics(ctx, stats); err != nil {
		return fmt.Errorf("failed to save statistics for %s: %w", login, err)
	}
	slog.Info("user statistics recalculated", "login", login,
		"commits", stats.TotalCommits, "prs", stats.TotalPRs, "issues", stats.TotalIssues,
		"total_score", stats.TotalScore)

	return a.MaybeRecalculatePlatform(ctx)
}

// RebuildUserCounts writes the count figures without scores.
func (a *aggregator) RebuildUserCounts(ctx context.Context, login string) error {
	stats, _, err := a.buildCounts(ctx, login)
	if err != nil {
		return err
	}
	if err := a.store.UpsertUserStatistics(ctx, stats); err != nil {
		return fmt.Errorf("failed to save statistics for %s: %w", login, err)
	}
	return nil
}

// RecalculateScores recomputes the score fields on the existing row. The
// counts must have been rebuilt first.
func (a *aggregator) RecalculateScores(ctx context.Context, login string) error {
	stats, err := a.store.GetUserStatistics(ctx, login)
	if err != nil {
		return fmt.Errorf("failed to load statistics for %s: %w", login, err)
	}
	commits, err := a.store.CommitsByLogin(ctx, login)
	if err != nil {
		return fmt.Errorf("failed to load commits for %s: %w", login, err)
	}

	stats.MainRepoScore = 0
	stats.OtherRepoScore = 0
	a.applyScores(stats, commits)
	stats.UpdatedAt = time.Now().UTC()

	if err := a.store.UpsertUserStatistics(ctx, stats); err != nil {
		return fmt.Errorf("failed to save scores for %s: %w", login, err)
	}
	return nil
}

// buildCounts assembles a fresh statistics row (scores zeroed) and returns
// the commit set so callers can score without a second load.
func (a *aggregator) buildCounts(ctx context.Context, login string) (*domain.UserStatistics, []*domain.CommitDocument, error) {
	commits, err := a.store.CommitsByLogin(ctx, login)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load commits for %s: %w", login, err)
	}
	repos, err := a.store.RepositoriesByLogin(ctx, login)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load repositories for %s: %w", login, err)
	}
	prCount, err := a.store.CountPullRequestsByLogin(ctx, login)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count pull requests for %s: %w", login, err)
	}
	issueCount, err := a.store.CountIssuesByLogin(ctx, login)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count issues for %s: %w", login, err)
	}

	stats := &domain.UserStatistics{
		GithubID:    login,
		TotalPRs:    prCount,
		TotalIssues: issueCount,
		UpdatedAt:   time.Now().UTC(),
	}
	a.applyCommits(stats, commits)
	a.applyRepositories(stats, repos)
	return stats, commits, nil
}

func (a *aggregator) applyCommits(stats *domain.UserStatistics, commits []*domain.CommitDocument) {
	stats.TotalCommits = len(commits)
	var periodStart, periodEnd time.Time
	for _, c := range commits {
		stats.TotalAdditions += c.Additions
		stats.TotalDeletions += c.Deletions

		// Night owl window: 22:00 (inclusive) through 06:00 (exclusive)
		// in the configured zone.
		hour := c.AuthoredAt.In(a.location).Hour()
		if hour >= nightStartHour || hour < nightEndHour {
			stats.NightCommits++
		} else {
			stats.DayCommits++
		}

		if periodStart.IsZero() || c.AuthoredAt.Before(periodStart) {
			periodStart = c.AuthoredAt
		}
		if c.AuthoredAt.After(periodEnd) {
			periodEnd = c.AuthoredAt
		}
	}
	stats.TotalLines = stats.TotalAdditions + stats.TotalDeletions
	if !periodStart.IsZero() {
		stats.PeriodStart = &periodStart
		stats.PeriodEnd = &periodEnd
	}
}

func (a *aggregator) applyRepositories(stats *domain.UserStatistics, repos []*domain.RepositoryDocument) {
	for _, r := range repos {
		if r.IsOwner {
			stats.OwnedRepos++
			// Reputation counts only repositories the user owns; stars on
			// someone else's project are not theirs.
			stats.TotalStars += r.Stars
			stats.TotalForks += r.Forks
		} else {
			stats.ContributedRepos++
		}
	}
}

// applyScores splits the commit set into main repositories (top three by
// commit count) and the rest, then combines the activity scores.
func (a *aggregator) applyScores(stats *domain.UserStatistics, commits []*domain.CommitDocument) {
	type repoActivity struct {
		fullName string
		commits  int
		lines    int
	}
	byRepo := make(map[string]*repoActivity)
	for _, c := range commits {
		key := c.RepoOwner + "/" + c.RepoName
		act, ok := byRepo[key]
		if !ok {
			act = &repoActivity{fullName: key}
			byRepo[key] = act
		}
		act.commits++
		act.lines += c.Additions + c.Deletions
	}

	activities := make([]*repoActivity, 0, len(byRepo))
	for _, act := range byRepo {
		activities = append(activities, act)
	}
	sort.Slice(activities, func(i, j int) bool {
		if activities[i].commits != activities[j].commits {
			return activities[i].commits > activities[j].commits
		}
		return activities[i].fullName < activities[j].fullName
	})

	for i, act := range activities {
		if i < mainRepoCount {
			stats.MainRepoScore += float64(act.commits)*mainCommitScore + float64(act.lines)*mainLineScore
		} else {
			stats.OtherRepoScore += float64(act.commits)*otherCommitScore + float64(act.lines)*otherLineScore
		}
	}

	stats.PRIssueScore = float64(stats.TotalPRs)*pullRequestScore + float64(stats.TotalIssues)*issueScore
	stats.ReputationScore = float64(stats.TotalStars)*starScore + float64(stats.TotalForks)*forkScore
	stats.TotalScore = stats.MainRepoScore + stats.OtherRepoScore + stats.PRIssueScore + stats.ReputationScore
}

// MaybeRecalculatePlatform refreshes the platform averages only when enough
// new users accumulated since the last refresh. The baseline is the user
// count recorded on the GLOBAL row.
func (a *aggregator) MaybeRecalculatePlatform(ctx context.Context) error {
	count, err := a.store.CountUserStatistics(ctx)
	if err != nil {
		return fmt.Errorf("failed to count user statistics: %w", err)
	}

	baseline := 0
	platform, err := a.store.GetPlatformStatistics(ctx)
	switch {
	case err == nil:
		baseline = platform.TotalUserCount
	case apperrors.IsNotFound(err):
		// First run, no baseline yet.
	default:
		return fmt.Errorf("failed to load platform statistics: %w", err)
	}

	if count-baseline < a.threshold {
		slog.Debug("skipping platform recalculation", "users", count, "baseline", baseline, "threshold", a.threshold)
		return nil
	}
	return a.RecalculatePlatform(ctx)
}

// RecalculatePlatform recomputes the GLOBAL averages over every user row
// and advances the baseline to the current user count.
func (a *aggregator) RecalculatePlatform(ctx context.Context) error {
	avgs, err := a.store.UserStatisticsAverages(ctx)
	if err != nil {
		return err
	}
	count, err := a.store.CountUserStatistics(ctx)
	if err != nil {
		return fmt.Errorf("failed to count user statistics: %w", err)
	}

	stats := &domain.PlatformStatistics{
		Key:            domain.PlatformStatKey,
		AvgCommits:     avgs.AvgCommits,
		AvgPRs:         avgs.AvgPRs,
		AvgIssues:      avgs.AvgIssues,
		AvgStars:       avgs.AvgStars,
		TotalUserCount: count,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := a.store.UpsertPlatformStatistics(ctx, stats); err != nil {
		return err
	}
	slog.Info("platform statistics recalculated", "users", count,
		"avg_commits", stats.AvgCommits, "avg_prs", stats.AvgPRs)
	return nil
}
