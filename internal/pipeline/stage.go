package pipeline

import "context"

// Result reports what a stage did with the data that flowed through it.
type Result struct {
	Read    int
	Written int
	Skipped int
}

// Stage is one step of a harvest run. Requires lists the execution context
// keys the stage reads; the orchestrator validates them before Execute so a
// missing input fails fast with the stage and key named.
type Stage interface {
	Name() string
	Requires() []string
	Execute(ctx context.Context, ec *ExecutionContext) (Result, error)
}
