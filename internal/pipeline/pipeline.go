package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campuscode-io/github-harvester/internal/aggregator"
	"github.com/campuscode-io/github-harvester/internal/collector"
	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// Pipeline runs an ordered list of stages over a shared execution context.
// The final stage is the cleanup stage and runs even when an earlier stage
// fails, so tokens never outlive a run and retention is always enforced.
type Pipeline struct {
	stages []Stage
}

// New creates a pipeline from an ordered stage list.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// DefaultStages wires the standard harvest run.
func DefaultStages(
	collectors collector.Factory,
	store storage.Storage,
	agg aggregator.Aggregator,
	evaluator ChallengeEvaluator,
	retention time.Duration,
) []Stage {
	return []Stage{
		NewRepositoryDiscoveryStage(collectors),
		NewPullRequestMiningStage(collectors),
		NewIssueMiningStage(collectors),
		NewCommitMiningStage(collectors),
		NewStatisticsAggregationStage(agg),
		NewScoreCalculationStage(agg),
		NewChallengeEvaluationStage(evaluator),
		NewPlatformAverageStage(agg),
		NewCleanupStage(store, retention),
	}
}

// Run executes the stages in order for one user. Each stage's declared
// preconditions are validated before it executes; a missing key fails the
// run with the stage and key named, and the stage never executes.
func (p *Pipeline) Run(ctx context.Context, user domain.UserRef, token string) error {
	runID := uuid.New().String()
	log := slog.With("run_id", runID, "login", user.GithubLogin)

	ec := NewExecutionContext()
	ec.Set(KeyLogin, user.GithubLogin)
	ec.Set(KeyUserID, user.UserID)
	ec.Set(KeyToken, token)

	log.Info("pipeline run started", "stages", len(p.stages))
	start := time.Now()

	var runErr error
	last := len(p.stages) - 1
	for i, stage := range p.stages {
		if runErr != nil && i != last {
			log.Warn("skipping stage after failure", "stage", stage.Name())
			continue
		}
		if err := checkPreconditions(stage, ec); err != nil {
			if runErr == nil {
				runErr = err
			}
			log.Error("stage preconditions not met", "stage", stage.Name(), "error", err)
			continue
		}

		stageStart := time.Now()
		res, err := stage.Execute(ctx, ec)
		if err != nil {
			if runErr == nil {
				runErr = fmt.Errorf("stage %s failed: %w", stage.Name(), err)
			}
			log.Error("stage failed", "stage", stage.Name(), "duration", time.Since(stageStart), "error", err)
			continue
		}
		log.Info("stage completed", "stage", stage.Name(), "duration", time.Since(stageStart),
			"read", res.Read, "written", res.Written, "skipped", res.Skipped)
	}

	if runErr != nil {
		log.Error("pipeline run failed", "duration", time.Since(start), "error", runErr)
		return runErr
	}
	log.Info("pipeline run completed", "duration", time.Since(start))
	return nil
}

// checkPreconditions validates that every key the stage declares is present
// before it executes.
func checkPreconditions(stage Stage, ec *ExecutionContext) error {
	for _, key := range stage.Requires() {
		if !ec.Has(key) {
			return fmt.Errorf("stage %s requires context key %q", stage.Name(), key)
		}
	}
	return nil
}
