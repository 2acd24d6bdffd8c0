package domain

import "time"

// Raw collected documents are append-only and deduplicated by their natural
// external key per user (commit sha, PR number, issue number, repo full name).

// CommitDocument is one raw commit harvested from a repository.
type CommitDocument struct {
	UserID      int64     `json:"user_id"`
	GithubLogin string    `json:"github_login"`
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	RepoOwner   string    `json:"repo_owner"`
	RepoName    string    `json:"repo_name"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	AuthoredAt  time.Time `json:"authored_at"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	CollectedAt time.Time `json:"collected_at"`
}

// PullRequestDocument is one raw pull request.
type PullRequestDocument struct {
	UserID      int64      `json:"user_id"`
	GithubLogin string     `json:"github_login"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	RepoOwner   string     `json:"repo_owner"`
	RepoName    string     `json:"repo_name"`
	AuthorLogin string     `json:"author_login"`
	OpenedAt    time.Time  `json:"opened_at"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
	CollectedAt time.Time  `json:"collected_at"`
}

// IssueDocument is one raw issue.
type IssueDocument struct {
	UserID      int64      `json:"user_id"`
	GithubLogin string     `json:"github_login"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	RepoOwner   string     `json:"repo_owner"`
	RepoName    string     `json:"repo_name"`
	AuthorLogin string     `json:"author_login"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CollectedAt time.Time  `json:"collected_at"`
}

// RepositoryDocument is one repository the user contributed to during the
// discovery window, with the metadata the aggregator needs.
type RepositoryDocument struct {
	UserID          int64     `json:"user_id"`
	GithubLogin     string    `json:"github_login"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	IsOwner         bool      `json:"is_owner"`
	IsFork          bool      `json:"is_fork"`
	IsPrivate       bool      `json:"is_private"`
	PrimaryLanguage string    `json:"primary_language"`
	Stars           int       `json:"stars"`
	Forks           int       `json:"forks"`
	CollectedAt     time.Time `json:"collected_at"`
}

// UserProfileDocument is the raw basic profile snapshot.
type UserProfileDocument struct {
	UserID      int64     `json:"user_id"`
	GithubLogin string    `json:"github_login"`
	Name        string    `json:"name"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	PublicRepos int       `json:"public_repos"`
	CollectedAt time.Time `json:"collected_at"`
}
