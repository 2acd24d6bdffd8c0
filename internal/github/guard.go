package github

import (
	"context"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

// RateLimitStatus is a snapshot of the API budget for one token.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimitGuard exposes the remaining API budget and time to reset. It is
// advisory: callers decide whether to pause, the pagination engine never
// blocks on it.
type RateLimitGuard interface {
	Check(ctx context.Context) (*RateLimitStatus, error)
	HasEnoughRemaining(ctx context.Context, n int) (bool, error)
	WaitTime(ctx context.Context) (time.Duration, error)
	Update(remaining int, resetAt time.Time)
}

type restGuard struct {
	client *gogithub.Client

	mu        sync.Mutex
	cached    *RateLimitStatus
	fetchedAt time.Time
	cacheTTL  time.Duration
}

// NewRateLimitGuard creates a guard backed by the REST rate_limit endpoint
// for one access token. The status is cached briefly so repeated advisory
// checks do not burn budget themselves.
func NewRateLimitGuard(ctx context.Context, token string) RateLimitGuard {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &restGuard{
		client:   gogithub.NewClient(oauth2.NewClient(ctx, ts)),
		cacheTTL: 30 * time.Second,
	}
}

func (g *restGuard) Check(ctx context.Context) (*RateLimitStatus, error) {
	g.mu.Lock()
	if g.cached != nil && time.Since(g.fetchedAt) < g.cacheTTL {
		status := *g.cached
		g.mu.Unlock()
		return &status, nil
	}
	g.mu.Unlock()

	limits, _, err := g.client.RateLimits(ctx)
	if err != nil {
		return nil, err
	}

	core := limits.GetCore()
	status := &RateLimitStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}

	g.mu.Lock()
	g.cached = status
	g.fetchedAt = time.Now()
	g.mu.Unlock()

	snapshot := *status
	return &snapshot, nil
}

func (g *restGuard) HasEnoughRemaining(ctx context.Context, n int) (bool, error) {
	status, err := g.Check(ctx)
	if err != nil {
		return false, err
	}
	return status.Remaining >= n, nil
}

// WaitTime returns how long until the budget resets, zero when the reset
// already passed.
func (g *restGuard) WaitTime(ctx context.Context) (time.Duration, error) {
	status, err := g.Check(ctx)
	if err != nil {
		return 0, err
	}
	wait := time.Until(status.ResetAt)
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

// Update feeds rate limit headers observed on regular API responses into the
// cached snapshot, avoiding an extra check call.
func (g *restGuard) Update(remaining int, resetAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached == nil {
		g.cached = &RateLimitStatus{}
	}
	g.cached.Remaining = remaining
	g.cached.ResetAt = resetAt
	g.fetchedAt = time.Now()
}
