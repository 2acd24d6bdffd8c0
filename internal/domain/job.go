package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of collection job
type JobType string

const (
	JobTypeUserBasic   JobType = "USER_BASIC"
	JobTypeUserEvents  JobType = "USER_EVENTS"
	JobTypeRepoIssues  JobType = "REPO_ISSUES"
	JobTypeRepoPRs     JobType = "REPO_PRS"
	JobTypeRepoCommits JobType = "REPO_COMMITS"
)

// JobPartition identifies which durable partition a job currently lives in
type JobPartition string

const (
	PartitionQueued     JobPartition = "queued"
	PartitionProcessing JobPartition = "processing"
	PartitionCompleted  JobPartition = "completed"
	PartitionFailed     JobPartition = "failed"
)

// CollectionJob is one unit of harvesting work. It is exclusively owned by
// the queue until a worker claims it with an atomic dequeue.
type CollectionJob struct {
	ID             string       `json:"id"`
	Type           JobType      `json:"type"`
	UserID         int64        `json:"user_id"`
	GithubLogin    string       `json:"github_login"`
	RepoOwner      string       `json:"repo_owner,omitempty"`
	RepoName       string       `json:"repo_name,omitempty"`
	EncryptedToken string       `json:"-"`
	Priority       int          `json:"priority"`
	RetryCount     int          `json:"retry_count"`
	MaxRetries     int          `json:"max_retries"`
	Partition      JobPartition `json:"partition"`
	ScheduledAt    time.Time    `json:"scheduled_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// RepoFullName returns "owner/name" for repository-scoped jobs.
func (j *CollectionJob) RepoFullName() string {
	if j.RepoOwner == "" || j.RepoName == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", j.RepoOwner, j.RepoName)
}

// IsRepoScoped reports whether the job targets a single repository.
func (j *CollectionJob) IsRepoScoped() bool {
	switch j.Type {
	case JobTypeRepoIssues, JobTypeRepoPRs, JobTypeRepoCommits:
		return true
	}
	return false
}

// RetriesExhausted reports whether the job has used its full retry budget.
func (j *CollectionJob) RetriesExhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// SplitRepoFullName splits "owner/name" into its parts. ok is false when
// the input is not a two-segment name.
func SplitRepoFullName(fullName string) (owner, name string, ok bool) {
	owner, name, found := strings.Cut(fullName, "/")
	if !found || owner == "" || name == "" {
		return "", "", false
	}
	return owner, name, true
}

// UserRef is the slice of the user/auth subsystem this pipeline consumes.
type UserRef struct {
	UserID         int64
	GithubLogin    string
	EncryptedToken string
}
