package github

import (
	"context"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
)

// RESTClient wraps the go-github client for the non-paginated REST calls the
// pipeline needs: the basic user profile snapshot.
type RESTClient struct {
	client *gogithub.Client
	guard  RateLimitGuard
}

// NewRESTClient creates a REST client for one access token. The guard, when
// given, is updated from response headers on every call.
func NewRESTClient(ctx context.Context, token string, guard RateLimitGuard) *RESTClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &RESTClient{
		client: gogithub.NewClient(oauth2.NewClient(ctx, ts)),
		guard:  guard,
	}
}

// FetchUserProfile fetches the basic profile for a login.
func (c *RESTClient) FetchUserProfile(ctx context.Context, user domain.UserRef) (*domain.UserProfileDocument, error) {
	ghUser, resp, err := c.client.Users.Get(ctx, user.GithubLogin)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				return nil, apperrors.NewNotFoundError("GitHub user " + user.GithubLogin)
			case http.StatusForbidden, http.StatusTooManyRequests:
				return nil, apperrors.NewRateLimitedError("rate limited fetching user " + user.GithubLogin)
			}
		}
		return nil, apperrors.NewRetryableError("failed to fetch user "+user.GithubLogin, err)
	}

	if c.guard != nil && resp != nil && resp.Rate.Remaining >= 0 {
		c.guard.Update(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}

	return &domain.UserProfileDocument{
		UserID:      user.UserID,
		GithubLogin: user.GithubLogin,
		Name:        ghUser.GetName(),
		Company:     ghUser.GetCompany(),
		Location:    ghUser.GetLocation(),
		Followers:   ghUser.GetFollowers(),
		Following:   ghUser.GetFollowing(),
		PublicRepos: ghUser.GetPublicRepos(),
		CollectedAt: time.Now(),
	}, nil
}
