package pipeline

import "context"

// ChallengeEvaluator is the downstream collaborator that consumes finished
// statistics (badge or challenge systems). Evaluate returns how many
// evaluations it performed for the login.
type ChallengeEvaluator interface {
	Evaluate(ctx context.Context, login string) (int, error)
}
