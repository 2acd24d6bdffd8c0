package github

import (
	"time"

	"github.com/campuscode-io/github-harvester/internal/domain"
)

// Each paginated entity stream is heterogeneously shaped; the typed payloads
// below expose the shared page cursor contract through a PageInfo accessor so
// the pagination engine can stay entity-agnostic. All accessors are nil-safe:
// a missing branch in the response yields an empty page.

const contributedRepositoriesQuery = `
query($login: String!, $from: DateTime!, $to: DateTime!, $cursor: String) {
  user(login: $login) {
    id
    repositoriesContributedTo(
      first: 100, after: $cursor,
      includeUserRepositories: true,
      contributionTypes: [COMMIT, PULL_REQUEST, ISSUE]
    ) {
      pageInfo { hasNextPage endCursor }
      nodes {
        name
        nameWithOwner
        description
        isFork
        isPrivate
        stargazerCount
        forkCount
        owner { login }
        primaryLanguage { name }
      }
    }
  }
}`

const repositoryCommitsQuery = `
query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    defaultBranchRef {
      target {
        ... on Commit {
          history(first: 100, after: $cursor) {
            pageInfo { hasNextPage endCursor }
            nodes {
              oid
              message
              additions
              deletions
              authoredDate
              author { name email user { login } }
            }
          }
        }
      }
    }
  }
}`

const repositoryPullRequestsQuery = `
query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        title
        state
        createdAt
        mergedAt
        author { login }
      }
    }
  }
}`

const repositoryIssuesQuery = `
query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    issues(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        title
        state
        createdAt
        closedAt
        author { login }
      }
    }
  }
}`

const userPullRequestsQuery = `
query($login: String!, $cursor: String) {
  user(login: $login) {
    pullRequests(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        title
        state
        createdAt
        mergedAt
        repository { name owner { login } }
      }
    }
  }
}`

const userIssuesQuery = `
query($login: String!, $cursor: String) {
  user(login: $login) {
    issues(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        title
        state
        createdAt
        closedAt
        repository { name owner { login } }
      }
    }
  }
}`

// Actor is the author reference GraphQL returns for PRs and issues.
type Actor struct {
	Login string `json:"login"`
}

// RepoRef identifies the repository a cross-repo node belongs to.
type RepoRef struct {
	Name  string `json:"name"`
	Owner Actor  `json:"owner"`
}

// RepositoryNode is one entry of the contributed-repositories stream.
type RepositoryNode struct {
	Name            string `json:"name"`
	NameWithOwner   string `json:"nameWithOwner"`
	Description     string `json:"description"`
	IsFork          bool   `json:"isFork"`
	IsPrivate       bool   `json:"isPrivate"`
	StargazerCount  int    `json:"stargazerCount"`
	ForkCount       int    `json:"forkCount"`
	Owner           Actor  `json:"owner"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
}

// Language returns the primary language name or "".
func (r *RepositoryNode) Language() string {
	if r.PrimaryLanguage == nil {
		return ""
	}
	return r.PrimaryLanguage.Name
}

// ContributedRepositories is the discovery stream payload.
type ContributedRepositories struct {
	User *struct {
		ID                        string `json:"id"`
		RepositoriesContributedTo struct {
			PageInfo domain.PageInfo  `json:"pageInfo"`
			Nodes    []RepositoryNode `json:"nodes"`
		} `json:"repositoriesContributedTo"`
	} `json:"user"`
}

func (c *ContributedRepositories) PageInfo() domain.PageInfo {
	if c.User == nil {
		return domain.PageInfo{}
	}
	return c.User.RepositoriesContributedTo.PageInfo
}

func (c *ContributedRepositories) Repositories() []RepositoryNode {
	if c.User == nil {
		return nil
	}
	return c.User.RepositoriesContributedTo.Nodes
}

// CommitNode is one commit of the repository history stream.
type CommitNode struct {
	Oid          string    `json:"oid"`
	Message      string    `json:"message"`
	Additions    int       `json:"additions"`
	Deletions    int       `json:"deletions"`
	AuthoredDate time.Time `json:"authoredDate"`
	Author       *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		User  *Actor `json:"user"`
	} `json:"author"`
}

// AuthorLogin returns the GitHub login of the commit author, or "" when the
// commit is not linked to a GitHub account.
func (c *CommitNode) AuthorLogin() string {
	if c.Author == nil || c.Author.User == nil {
		return ""
	}
	return c.Author.User.Login
}

// AuthorName returns the git author name or "".
func (c *CommitNode) AuthorName() string {
	if c.Author == nil {
		return ""
	}
	return c.Author.Name
}

// AuthorEmail returns the git author email or "".
func (c *CommitNode) AuthorEmail() string {
	if c.Author == nil {
		return ""
	}
	return c.Author.Email
}

// RepositoryCommits is the commit mining payload. Empty repositories have a
// nil defaultBranchRef, which the accessors treat as a zero-commit page.
type RepositoryCommits struct {
	Repository *struct {
		DefaultBranchRef *struct {
			Target *struct {
				History struct {
					PageInfo domain.PageInfo `json:"pageInfo"`
					Nodes    []CommitNode    `json:"nodes"`
				} `json:"history"`
			} `json:"target"`
		} `json:"defaultBranchRef"`
	} `json:"repository"`
}

func (r *RepositoryCommits) PageInfo() domain.PageInfo {
	if r.Repository == nil || r.Repository.DefaultBranchRef == nil || r.Repository.DefaultBranchRef.Target == nil {
		return domain.PageInfo{}
	}
	return r.Repository.DefaultBranchRef.Target.History.PageInfo
}

func (r *RepositoryCommits) Commits() []CommitNode {
	if r.Repository == nil || r.Repository.DefaultBranchRef == nil || r.Repository.DefaultBranchRef.Target == nil {
		return nil
	}
	return r.Repository.DefaultBranchRef.Target.History.Nodes
}

// PullRequestNode is one pull request of either PR stream.
type PullRequestNode struct {
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	State      string     `json:"state"`
	CreatedAt  time.Time  `json:"createdAt"`
	MergedAt   *time.Time `json:"mergedAt"`
	Author     *Actor     `json:"author"`
	Repository *RepoRef   `json:"repository"`
}

// AuthorLogin returns the PR author login or "".
func (p *PullRequestNode) AuthorLogin() string {
	if p.Author == nil {
		return ""
	}
	return p.Author.Login
}

// RepositoryPullRequests is the repo-scoped PR mining payload.
type RepositoryPullRequests struct {
	Repository *struct {
		PullRequests struct {
			PageInfo domain.PageInfo   `json:"pageInfo"`
			Nodes    []PullRequestNode `json:"nodes"`
		} `json:"pullRequests"`
	} `json:"repository"`
}

func (r *RepositoryPullRequests) PageInfo() domain.PageInfo {
	if r.Repository == nil {
		return domain.PageInfo{}
	}
	return r.Repository.PullRequests.PageInfo
}

func (r *RepositoryPullRequests) PullRequests() []PullRequestNode {
	if r.Repository == nil {
		return nil
	}
	return r.Repository.PullRequests.Nodes
}

// IssueNode is one issue of either issue stream.
type IssueNode struct {
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	State      string     `json:"state"`
	CreatedAt  time.Time  `json:"createdAt"`
	ClosedAt   *time.Time `json:"closedAt"`
	Author     *Actor     `json:"author"`
	Repository *RepoRef   `json:"repository"`
}

// AuthorLogin returns the issue author login or "".
func (i *IssueNode) AuthorLogin() string {
	if i.Author == nil {
		return ""
	}
	return i.Author.Login
}

// RepositoryIssues is the repo-scoped issue mining payload.
type RepositoryIssues struct {
	Repository *struct {
		Issues struct {
			PageInfo domain.PageInfo `json:"pageInfo"`
			Nodes    []IssueNode     `json:"nodes"`
		} `json:"issues"`
	} `json:"repository"`
}

func (r *RepositoryIssues) PageInfo() domain.PageInfo {
	if r.Repository == nil {
		return domain.PageInfo{}
	}
	return r.Repository.Issues.PageInfo
}

func (r *RepositoryIssues) Issues() []IssueNode {
	if r.Repository == nil {
		return nil
	}
	return r.Repository.Issues.Nodes
}

// UserPullRequests is the cross-repo PR stream for USER_EVENTS jobs.
type UserPullRequests struct {
	User *struct {
		PullRequests struct {
			PageInfo domain.PageInfo   `json:"pageInfo"`
			Nodes    []PullRequestNode `json:"nodes"`
		} `json:"pullRequests"`
	} `json:"user"`
}

func (u *UserPullRequests) PageInfo() domain.PageInfo {
	if u.User == nil {
		return domain.PageInfo{}
	}
	return u.User.PullRequests.PageInfo
}

func (u *UserPullRequests) PullRequests() []PullRequestNode {
	if u.User == nil {
		return nil
	}
	return u.User.PullRequests.Nodes
}

// UserIssues is the cross-repo issue stream for USER_EVENTS jobs.
type UserIssues struct {
	User *struct {
		Issues struct {
			PageInfo domain.PageInfo `json:"pageInfo"`
			Nodes    []IssueNode     `json:"nodes"`
		} `json:"issues"`
	} `json:"user"`
}

func (u *UserIssues) PageInfo() domain.PageInfo {
	if u.User == nil {
		return domain.PageInfo{}
	}
	return u.User.Issues.PageInfo
}

func (u *UserIssues) Issues() []IssueNode {
	if u.User == nil {
		return nil
	}
	return u.User.Issues.Nodes
}
