package domain

import "time"

// PlatformStatKey is the singleton key for the platform-wide rollup row.
const PlatformStatKey = "GLOBAL"

// UserStatistics is the per-user rollup, rebuilt wholesale from the raw
// document set on every run and upserted by GithubID.
type UserStatistics struct {
	GithubID         string     `json:"github_id"`
	TotalCommits     int        `json:"total_commits"`
	TotalAdditions   int        `json:"total_additions"`
	TotalDeletions   int        `json:"total_deletions"`
	TotalLines       int        `json:"total_lines"`
	TotalPRs         int        `json:"total_prs"`
	TotalIssues      int        `json:"total_issues"`
	OwnedRepos       int        `json:"owned_repos"`
	ContributedRepos int        `json:"contributed_repos"`
	TotalStars       int        `json:"total_stars"`
	TotalForks       int        `json:"total_forks"`
	NightCommits     int        `json:"night_commits"`
	DayCommits       int        `json:"day_commits"`
	MainRepoScore    float64    `json:"main_repo_score"`
	OtherRepoScore   float64    `json:"other_repo_score"`
	PRIssueScore     float64    `json:"pr_issue_score"`
	ReputationScore  float64    `json:"reputation_score"`
	TotalScore       float64    `json:"total_score"`
	PeriodStart      *time.Time `json:"period_start,omitempty"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PlatformStatistics is the singleton GLOBAL rollup. Averages are only
// recomputed once enough new users have accumulated past the baseline.
type PlatformStatistics struct {
	Key            string    `json:"key"`
	AvgCommits     float64   `json:"avg_commits"`
	AvgPRs         float64   `json:"avg_prs"`
	AvgIssues      float64   `json:"avg_issues"`
	AvgStars       float64   `json:"avg_stars"`
	TotalUserCount int       `json:"total_user_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PlatformAverages carries the set-level aggregation result straight out of
// the statistics store.
type PlatformAverages struct {
	AvgCommits float64
	AvgPRs     float64
	AvgIssues  float64
	AvgStars   float64
}
