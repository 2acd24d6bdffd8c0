// Package github holds the GraphQL and REST clients for the external GitHub
// API, the response error classifier and the rate limit guard.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
)

// GraphQLError is one entry of the errors[] array in a GraphQL response.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// Response is the raw GraphQL envelope: data, possibly alongside errors.
type Response[T any] struct {
	Data   *T             `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// HasErrors reports whether the response carries any errors.
func (r *Response[T]) HasErrors() bool {
	return len(r.Errors) > 0
}

// Client executes GraphQL queries against the GitHub API with an
// authenticated transport and a minimum delay between requests.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a GraphQL client for one access token.
func NewClient(ctx context.Context, endpoint, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		// Minimum 100ms between requests, same pacing for every entity stream.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// execute runs one query and decodes the envelope. Transport and HTTP-level
// failures come back as classified errors; GraphQL-level errors stay inside
// the returned Response for the classifier.
func execute[T any](ctx context.Context, c *Client, query string, vars map[string]any) (*Response[T], error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode GraphQL request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build GraphQL request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewRetryableError("GraphQL request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return nil, apperrors.NewRateLimitedError("GitHub API rate limit exhausted")
		}
		return nil, apperrors.NewNonRetryableError(
			fmt.Sprintf("GraphQL request forbidden (status %d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNonRetryableError("GraphQL endpoint not found", nil)
	case resp.StatusCode >= 500:
		return nil, apperrors.NewRetryableError(
			fmt.Sprintf("GraphQL server error (status %d)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewRetryableError(
			fmt.Sprintf("unexpected GraphQL status %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewRetryableError("failed to read GraphQL response", err)
	}

	var out Response[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.NewNonRetryableError("malformed GraphQL response", err)
	}
	return &out, nil
}

// ContributedRepositories fetches one page of the repositories the user
// contributed to between from and to.
func (c *Client) ContributedRepositories(ctx context.Context, login string, from, to time.Time, cursor *string) (*Response[ContributedRepositories], error) {
	return execute[ContributedRepositories](ctx, c, contributedRepositoriesQuery, map[string]any{
		"login":  login,
		"from":   from.UTC().Format(time.RFC3339),
		"to":     to.UTC().Format(time.RFC3339),
		"cursor": cursorValue(cursor),
	})
}

// RepositoryCommits fetches one page of default-branch commit history.
func (c *Client) RepositoryCommits(ctx context.Context, owner, name string, cursor *string) (*Response[RepositoryCommits], error) {
	return execute[RepositoryCommits](ctx, c, repositoryCommitsQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"cursor": cursorValue(cursor),
	})
}

// RepositoryPullRequests fetches one page of pull requests.
func (c *Client) RepositoryPullRequests(ctx context.Context, owner, name string, cursor *string) (*Response[RepositoryPullRequests], error) {
	return execute[RepositoryPullRequests](ctx, c, repositoryPullRequestsQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"cursor": cursorValue(cursor),
	})
}

// RepositoryIssues fetches one page of issues.
func (c *Client) RepositoryIssues(ctx context.Context, owner, name string, cursor *string) (*Response[RepositoryIssues], error) {
	return execute[RepositoryIssues](ctx, c, repositoryIssuesQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"cursor": cursorValue(cursor),
	})
}

// UserPullRequests fetches one page of pull requests authored by the user
// across all repositories.
func (c *Client) UserPullRequests(ctx context.Context, login string, cursor *string) (*Response[UserPullRequests], error) {
	return execute[UserPullRequests](ctx, c, userPullRequestsQuery, map[string]any{
		"login":  login,
		"cursor": cursorValue(cursor),
	})
}

// UserIssues fetches one page of issues authored by the user across all
// repositories.
func (c *Client) UserIssues(ctx context.Context, login string, cursor *string) (*Response[UserIssues], error) {
	return execute[UserIssues](ctx, c, userIssuesQuery, map[string]any{
		"login":  login,
		"cursor": cursorValue(cursor),
	})
}

// cursorValue maps a nil cursor to JSON null so the first page query is valid.
func cursorValue(cursor *string) any {
	if cursor == nil {
		return nil
	}
	return *cursor
}
