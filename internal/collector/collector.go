package collector

import (
	"context"

	"github.com/campuscode-io/github-harvester/internal/domain"
)

// Collector defines the interface for harvesting GitHub data for one user.
// Implementations are bound to a single decrypted token and live no longer
// than one job or pipeline run.
type Collector interface {
	// DiscoverRepositories harvests the repositories the user contributed to
	// during the discovery window and returns their full names.
	DiscoverRepositories(ctx context.Context, user domain.UserRef) ([]string, error)

	// CollectUserBasic harvests the basic profile snapshot.
	CollectUserBasic(ctx context.Context, user domain.UserRef) error

	// CollectUserEvents harvests the user's cross-repository PR and issue
	// streams.
	CollectUserEvents(ctx context.Context, user domain.UserRef) (int, error)

	// CollectCommits harvests the default-branch commit history of one
	// repository, keeping only commits authored by the user.
	CollectCommits(ctx context.Context, user domain.UserRef, owner, name string) (int, error)

	// CollectPullRequests harvests one repository's pull requests authored
	// by the user.
	CollectPullRequests(ctx context.Context, user domain.UserRef, owner, name string) (int, error)

	// CollectIssues harvests one repository's issues authored by the user.
	CollectIssues(ctx context.Context, user domain.UserRef, owner, name string) (int, error)
}

// Factory builds a Collector bound to one decrypted token.
type Factory func(ctx context.Context, token string) Collector
