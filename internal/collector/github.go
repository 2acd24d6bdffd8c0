package collector

import (
	"context"
	"strings"
	"time"

	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/github"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// discoveryWindow is how far back repository discovery looks.
const discoveryWindow = 365 * 24 * time.Hour

// githubCollector implements Collector against the GitHub GraphQL and REST APIs.
type githubCollector struct {
	gql   *github.Client
	rest  *github.RESTClient
	store storage.Storage
}

// NewGitHubCollector creates a collector bound to one decrypted token.
func NewGitHubCollector(ctx context.Context, graphqlURL, token string, guard github.RateLimitGuard, store storage.Storage) Collector {
	return &githubCollector{
		gql:   github.NewClient(ctx, graphqlURL, token),
		rest:  github.NewRESTClient(ctx, token, guard),
		store: store,
	}
}

// DiscoverRepositories harvests the contributed-repositories stream and
// returns the discovered full names.
func (c *githubCollector) DiscoverRepositories(ctx context.Context, user domain.UserRef) ([]string, error) {
	to := time.Now().UTC()
	from := to.Add(-discoveryWindow)
	now := time.Now()

	var fullNames []string
	_, err := Paginate(ctx, "user", user.GithubLogin,
		func(ctx context.Context, cursor *string) (*github.Response[github.ContributedRepositories], error) {
			return c.gql.ContributedRepositories(ctx, user.GithubLogin, from, to, cursor)
		},
		(*github.ContributedRepositories).PageInfo,
		func(ctx context.Context, data *github.ContributedRepositories, _ *string) (int, error) {
			saved := 0
			for _, repo := range data.Repositories() {
				doc := &domain.RepositoryDocument{
					UserID:          user.UserID,
					GithubLogin:     user.GithubLogin,
					Owner:           repo.Owner.Login,
					Name:            repo.Name,
					FullName:        repo.NameWithOwner,
					Description:     repo.Description,
					IsOwner:         strings.EqualFold(repo.Owner.Login, user.GithubLogin),
					IsFork:          repo.IsFork,
					IsPrivate:       repo.IsPrivate,
					PrimaryLanguage: repo.Language(),
					Stars:           repo.StargazerCount,
					Forks:           repo.ForkCount,
					CollectedAt:     now,
				}
				if err := c.store.SaveRepository(ctx, doc); err != nil {
					return saved, err
				}
				fullNames = append(fullNames, repo.NameWithOwner)
				saved++
			}
			return saved, nil
		},
	)
	if err != nil {
		return fullNames, err
	}
	return fullNames, nil
}

// CollectUserBasic harvests the profile snapshot via the REST API.
func (c *githubCollector) CollectUserBasic(ctx context.Context, user domain.UserRef) error {
	profile, err := c.rest.FetchUserProfile(ctx, user)
	if err != nil {
		return err
	}
	return c.store.SaveUserProfile(ctx, profile)
}

// CollectUserEvents harvests the cross-repo PR and issue streams.
func (c *githubCollector) CollectUserEvents(ctx context.Context, user domain.UserRef) (int, error) {
	now := time.Now()

	prSaved, err := Paginate(ctx, "user", user.GithubLogin,
		func(ctx context.Context, cursor *string) (*github.Response[github.UserPullRequests], error) {
			return c.gql.UserPullRequests(ctx, user.GithubLogin, cursor)
		},
		(*github.UserPullRequests).PageInfo,
		func(ctx context.Context, data *github.UserPullRequests, _ *string) (int, error) {
			return c.savePullRequestNodes(ctx, user, "", "", data.PullRequests(), now)
		},
	)
	if err != nil {
		return prSaved, err
	}

	issueSaved, err := Paginate(ctx, "user", user.GithubLogin,
		func(ctx context.Context, cursor *string) (*github.Response[github.UserIssues], error) {
			return c.gql.UserIssues(ctx, user.GithubLogin, cursor)
		},
		(*github.UserIssues).PageInfo,
		func(ctx context.Context, data *github.UserIssues, _ *string) (int, error) {
			return c.saveIssueNodes(ctx, user, "", "", data.Issues(), now)
		},
	)
	return prSaved + issueSaved, err
}

// CollectCommits harvests one repository's default-branch history.
func (c *githubCollector) CollectCommits(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	now := time.Now()
	return Paginate(ctx, "repo", owner+"/"+name,
		func(ctx context.Context, cursor *string) (*github.Response[github.RepositoryCommits], error) {
			return c.gql.RepositoryCommits(ctx, owner, name, cursor)
		},
		(*github.RepositoryCommits).PageInfo,
		func(ctx context.Context, data *github.RepositoryCommits, _ *string) (int, error) {
			saved := 0
			for _, commit := range data.Commits() {
				// Only commits authored by the harvested user count.
				if !strings.EqualFold(commit.AuthorLogin(), user.GithubLogin) {
					continue
				}
				exists, err := c.store.CommitExists(ctx, user.UserID, commit.Oid)
				if err != nil {
					return saved, err
				}
				if exists {
					continue
				}
				doc := &domain.CommitDocument{
					UserID:      user.UserID,
					GithubLogin: user.GithubLogin,
					SHA:         commit.Oid,
					Message:     commit.Message,
					RepoOwner:   owner,
					RepoName:    name,
					AuthorName:  commit.AuthorName(),
					AuthorEmail: commit.AuthorEmail(),
					AuthoredAt:  commit.AuthoredDate,
					Additions:   commit.Additions,
					Deletions:   commit.Deletions,
					CollectedAt: now,
				}
				if err := c.store.SaveCommit(ctx, doc); err != nil {
					return saved, err
				}
				saved++
			}
			return saved, nil
		},
	)
}

// CollectPullRequests harvests one repository's pull requests.
func (c *githubCollector) CollectPullRequests(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	now := time.Now()
	return Paginate(ctx, "repo", owner+"/"+name,
		func(ctx context.Context, cursor *string) (*github.Response[github.RepositoryPullRequests], error) {
			return c.gql.RepositoryPullRequests(ctx, owner, name, cursor)
		},
		(*github.RepositoryPullRequests).PageInfo,
		func(ctx context.Context, data *github.RepositoryPullRequests, _ *string) (int, error) {
			return c.savePullRequestNodes(ctx, user, owner, name, data.PullRequests(), now)
		},
	)
}

// CollectIssues harvests one repository's issues.
func (c *githubCollector) CollectIssues(ctx context.Context, user domain.UserRef, owner, name string) (int, error) {
	now := time.Now()
	return Paginate(ctx, "repo", owner+"/"+name,
		func(ctx context.Context, cursor *string) (*github.Response[github.RepositoryIssues], error) {
			return c.gql.RepositoryIssues(ctx, owner, name, cursor)
		},
		(*github.RepositoryIssues).PageInfo,
		func(ctx context.Context, data *github.RepositoryIssues, _ *string) (int, error) {
			return c.saveIssueNodes(ctx, user, owner, name, data.Issues(), now)
		},
	)
}

// savePullRequestNodes persists PRs authored by the user, deduplicated by
// (userID, owner/name, number). Cross-repo nodes carry their own repository
// reference; repo-scoped nodes use the passed owner and name.
func (c *githubCollector) savePullRequestNodes(ctx context.Context, user domain.UserRef, owner, name string, nodes []github.PullRequestNode, now time.Time) (int, error) {
	saved := 0
	for _, pr := range nodes {
		repoOwner, repoName := owner, name
		if pr.Repository != nil {
			repoOwner, repoName = pr.Repository.Owner.Login, pr.Repository.Name
		}
		if pr.AuthorLogin() != "" && !strings.EqualFold(pr.AuthorLogin(), user.GithubLogin) {
			continue
		}
		exists, err := c.store.PullRequestExists(ctx, user.UserID, repoOwner, repoName, pr.Number)
		if err != nil {
			return saved, err
		}
		if exists {
			continue
		}
		doc := &domain.PullRequestDocument{
			UserID:      user.UserID,
			GithubLogin: user.GithubLogin,
			Number:      pr.Number,
			Title:       pr.Title,
			State:       pr.State,
			RepoOwner:   repoOwner,
			RepoName:    repoName,
			AuthorLogin: pr.AuthorLogin(),
			OpenedAt:    pr.CreatedAt,
			MergedAt:    pr.MergedAt,
			CollectedAt: now,
		}
		if err := c.store.SavePullRequest(ctx, doc); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// saveIssueNodes mirrors savePullRequestNodes for issues.
func (c *githubCollector) saveIssueNodes(ctx context.Context, user domain.UserRef, owner, name string, nodes []github.IssueNode, now time.Time) (int, error) {
	saved := 0
	for _, issue := range nodes {
		repoOwner, repoName := owner, name
		if issue.Repository != nil {
			repoOwner, repoName = issue.Repository.Owner.Login, issue.Repository.Name
		}
		if issue.AuthorLogin() != "" && !strings.EqualFold(issue.AuthorLogin(), user.GithubLogin) {
			continue
		}
		exists, err := c.store.IssueExists(ctx, user.UserID, repoOwner, repoName, issue.Number)
		if err != nil {
			return saved, err
		}
		if exists {
			continue
		}
		doc := &domain.IssueDocument{
			UserID:      user.UserID,
			GithubLogin: user.GithubLogin,
			Number:      issue.Number,
			Title:       issue.Title,
			State:       issue.State,
			RepoOwner:   repoOwner,
			RepoName:    repoName,
			AuthorLogin: issue.AuthorLogin(),
			OpenedAt:    issue.CreatedAt,
			ClosedAt:    issue.ClosedAt,
			CollectedAt: now,
		}
		if err := c.store.SaveIssue(ctx, doc); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}
