package pipeline

import (
	"context"
	"time"

	"github.com/campuscode-io/github-harvester/internal/aggregator"
	"github.com/campuscode-io/github-harvester/internal/collector"
	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// stageInputs pulls the common user identity out of the execution context.
func stageInputs(ec *ExecutionContext) (domain.UserRef, string, error) {
	login, err := ec.RequireString(KeyLogin)
	if err != nil {
		return domain.UserRef{}, "", err
	}
	userID, err := ec.RequireInt64(KeyUserID)
	if err != nil {
		return domain.UserRef{}, "", err
	}
	token, err := ec.RequireString(KeyToken)
	if err != nil {
		return domain.UserRef{}, "", err
	}
	return domain.UserRef{UserID: userID, GithubLogin: login}, token, nil
}

// repositoryDiscoveryStage finds the repositories the user contributed to
// and publishes their full names for the mining stages.
type repositoryDiscoveryStage struct {
	collectors collector.Factory
}

func NewRepositoryDiscoveryStage(collectors collector.Factory) Stage {
	return &repositoryDiscoveryStage{collectors: collectors}
}

func (s *repositoryDiscoveryStage) Name() string { return "repository-discovery" }

func (s *repositoryDiscoveryStage) Requires() []string {
	return []string{KeyLogin, KeyUserID, KeyToken}
}

func (s *repositoryDiscoveryStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	user, token, err := stageInputs(ec)
	if err != nil {
		return Result{}, err
	}
	repos, err := s.collectors(ctx, token).DiscoverRepositories(ctx, user)
	if err != nil {
		return Result{}, err
	}
	ec.Set(KeyDiscoveredRepos, repos)
	return Result{Written: len(repos)}, nil
}

// miningStage is the shared shape of the three per-repository mining
// stages; collect is the per-repo harvest call.
type miningStage struct {
	name       string
	collectors collector.Factory
	collect    func(ctx context.Context, coll collector.Collector, user domain.UserRef, owner, name string) (int, error)
}

func (s *miningStage) Name() string { return s.name }

func (s *miningStage) Requires() []string {
	return []string{KeyLogin, KeyUserID, KeyToken, KeyDiscoveredRepos}
}

func (s *miningStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	user, token, err := stageInputs(ec)
	if err != nil {
		return Result{}, err
	}
	repos, err := ec.RequireStrings(KeyDiscoveredRepos)
	if err != nil {
		return Result{}, err
	}

	coll := s.collectors(ctx, token)
	res := Result{Read: len(repos)}
	for _, fullName := range repos {
		owner, name, ok := domain.SplitRepoFullName(fullName)
		if !ok {
			res.Skipped++
			continue
		}
		saved, err := s.collect(ctx, coll, user, owner, name)
		if err != nil {
			return res, err
		}
		res.Written += saved
	}
	return res, nil
}

func NewPullRequestMiningStage(collectors collector.Factory) Stage {
	return &miningStage{
		name:       "pull-request-mining",
		collectors: collectors,
		collect: func(ctx context.Context, coll collector.Collector, user domain.UserRef, owner, name string) (int, error) {
			return coll.CollectPullRequests(ctx, user, owner, name)
		},
	}
}

func NewIssueMiningStage(collectors collector.Factory) Stage {
	return &miningStage{
		name:       "issue-mining",
		collectors: collectors,
		collect: func(ctx context.Context, coll collector.Collector, user domain.UserRef, owner, name string) (int, error) {
			return coll.CollectIssues(ctx, user, owner, name)
		},
	}
}

func NewCommitMiningStage(collectors collector.Factory) Stage {
	return &miningStage{
		name:       "commit-mining",
		collectors: collectors,
		collect: func(ctx context.Context, coll collector.Collector, user domain.UserRef, owner, name string) (int, error) {
			return coll.CollectCommits(ctx, user, owner, name)
		},
	}
}

// statisticsAggregationStage rebuilds the user's count figures.
type statisticsAggregationStage struct {
	agg aggregator.Aggregator
}

func NewStatisticsAggregationStage(agg aggregator.Aggregator) Stage {
	return &statisticsAggregationStage{agg: agg}
}

func (s *statisticsAggregationStage) Name() string { return "statistics-aggregation" }

func (s *statisticsAggregationStage) Requires() []string { return []string{KeyLogin} }

func (s *statisticsAggregationStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	login, err := ec.RequireString(KeyLogin)
	if err != nil {
		return Result{}, err
	}
	if err := s.agg.RebuildUserCounts(ctx, login); err != nil {
		return Result{}, err
	}
	return Result{Written: 1}, nil
}

// scoreCalculationStage recomputes the activity scores on the rebuilt row.
type scoreCalculationStage struct {
	agg aggregator.Aggregator
}

func NewScoreCalculationStage(agg aggregator.Aggregator) Stage {
	return &scoreCalculationStage{agg: agg}
}

func (s *scoreCalculationStage) Name() string { return "score-calculation" }

func (s *scoreCalculationStage) Requires() []string { return []string{KeyLogin} }

func (s *scoreCalculationStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	login, err := ec.RequireString(KeyLogin)
	if err != nil {
		return Result{}, err
	}
	if err := s.agg.RecalculateScores(ctx, login); err != nil {
		return Result{}, err
	}
	return Result{Written: 1}, nil
}

// challengeEvaluationStage hands the finished statistics to a downstream
// evaluator. With no evaluator configured the stage is a no-op.
type challengeEvaluationStage struct {
	evaluator ChallengeEvaluator
}

func NewChallengeEvaluationStage(evaluator ChallengeEvaluator) Stage {
	return &challengeEvaluationStage{evaluator: evaluator}
}

func (s *challengeEvaluationStage) Name() string { return "challenge-evaluation" }

func (s *challengeEvaluationStage) Requires() []string { return []string{KeyLogin} }

func (s *challengeEvaluationStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	login, err := ec.RequireString(KeyLogin)
	if err != nil {
		return Result{}, err
	}
	if s.evaluator == nil {
		return Result{Skipped: 1}, nil
	}
	evaluated, err := s.evaluator.Evaluate(ctx, login)
	if err != nil {
		return Result{}, err
	}
	return Result{Written: evaluated}, nil
}

// platformAverageStage refreshes the platform rollup behind the threshold
// gate.
type platformAverageStage struct {
	agg aggregator.Aggregator
}

func NewPlatformAverageStage(agg aggregator.Aggregator) Stage {
	return &platformAverageStage{agg: agg}
}

func (s *platformAverageStage) Name() string { return "platform-average" }

func (s *platformAverageStage) Requires() []string { return nil }

func (s *platformAverageStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	if err := s.agg.MaybeRecalculatePlatform(ctx); err != nil {
		return Result{}, err
	}
	return Result{Written: 1}, nil
}

// cleanupStage drops token material from the execution context and prunes
// completed jobs past the retention window. It runs even when an earlier
// stage failed.
type cleanupStage struct {
	store     storage.Storage
	retention time.Duration
}

func NewCleanupStage(store storage.Storage, retention time.Duration) Stage {
	return &cleanupStage{store: store, retention: retention}
}

func (s *cleanupStage) Name() string { return "cleanup" }

func (s *cleanupStage) Requires() []string { return nil }

func (s *cleanupStage) Execute(ctx context.Context, ec *ExecutionContext) (Result, error) {
	ec.Delete(KeyToken)
	pruned, err := s.store.PruneCompletedJobs(ctx, time.Now().UTC().Add(-s.retention))
	if err != nil {
		return Result{}, err
	}
	return Result{Written: pruned}, nil
}
