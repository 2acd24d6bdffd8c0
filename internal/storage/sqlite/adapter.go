// Package sqlite implements the Storage interface on SQLite, the default
// single-node backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS commits (
		user_id INTEGER NOT NULL,
		github_login TEXT NOT NULL,
		sha TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		repo_owner TEXT NOT NULL,
		repo_name TEXT NOT NULL,
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		authored_at TIMESTAMP NOT NULL,
		additions INTEGER NOT NULL DEFAULT 0,
		deletions INTEGER NOT NULL DEFAULT 0,
		collected_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, sha)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_login ON commits(github_login);
	CREATE INDEX IF NOT EXISTS idx_commits_repo ON commits(repo_owner, repo_name);

	CREATE TABLE IF NOT EXISTS pull_requests (
		user_id INTEGER NOT NULL,
		github_login TEXT NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		repo_owner TEXT NOT NULL,
		repo_name TEXT NOT NULL,
		author_login TEXT NOT NULL DEFAULT '',
		opened_at TIMESTAMP NOT NULL,
		merged_at TIMESTAMP,
		collected_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, repo_owner, repo_name, number)
	);

	CREATE INDEX IF NOT EXISTS idx_pull_requests_login ON pull_requests(github_login);

	CREATE TABLE IF NOT EXISTS issues (
		user_id INTEGER NOT NULL,
		github_login TEXT NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		repo_owner TEXT NOT NULL,
		repo_name TEXT NOT NULL,
		author_login TEXT NOT NULL DEFAULT '',
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP,
		collected_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, repo_owner, repo_name, number)
	);

	CREATE INDEX IF NOT EXISTS idx_issues_login ON issues(github_login);

	CREATE TABLE IF NOT EXISTS repositories (
		user_id INTEGER NOT NULL,
		github_login TEXT NOT NULL,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_owner INTEGER NOT NULL DEFAULT 0,
		is_fork INTEGER NOT NULL DEFAULT 0,
		is_private INTEGER NOT NULL DEFAULT 0,
		primary_language TEXT NOT NULL DEFAULT '',
		stars INTEGER NOT NULL DEFAULT 0,
		forks INTEGER NOT NULL DEFAULT 0,
		collected_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, full_name)
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_login ON repositories(github_login);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id INTEGER PRIMARY KEY,
		github_login TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		followers INTEGER NOT NULL DEFAULT 0,
		following INTEGER NOT NULL DEFAULT 0,
		public_repos INTEGER NOT NULL DEFAULT 0,
		collected_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		github_login TEXT NOT NULL,
		repo_owner TEXT NOT NULL DEFAULT '',
		repo_name TEXT NOT NULL DEFAULT '',
		encrypted_token TEXT NOT NULL,
		priority INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL,
		"partition" TEXT NOT NULL,
		scheduled_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_partition_due ON jobs("partition", priority, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_login ON jobs(github_login);

	CREATE TABLE IF NOT EXISTS job_counters (
		github_login TEXT PRIMARY KEY,
		remaining INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_statistics (
		github_id TEXT PRIMARY KEY,
		total_commits INTEGER NOT NULL DEFAULT 0,
		total_additions INTEGER NOT NULL DEFAULT 0,
		total_deletions INTEGER NOT NULL DEFAULT 0,
		total_lines INTEGER NOT NULL DEFAULT 0,
		total_prs INTEGER NOT NULL DEFAULT 0,
		total_issues INTEGER NOT NULL DEFAULT 0,
		owned_repos INTEGER NOT NULL DEFAULT 0,
		contributed_repos INTEGER NOT NULL DEFAULT 0,
		total_stars INTEGER NOT NULL DEFAULT 0,
		total_forks INTEGER NOT NULL DEFAULT 0,
		night_commits INTEGER NOT NULL DEFAULT 0,
		day_commits INTEGER NOT NULL DEFAULT 0,
		main_repo_score REAL NOT NULL DEFAULT 0,
		other_repo_score REAL NOT NULL DEFAULT 0,
		pr_issue_score REAL NOT NULL DEFAULT 0,
		reputation_score REAL NOT NULL DEFAULT 0,
		total_score REAL NOT NULL DEFAULT 0,
		period_start TIMESTAMP,
		period_end TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS platform_statistics (
		key TEXT PRIMARY KEY,
		avg_commits REAL NOT NULL DEFAULT 0,
		avg_prs REAL NOT NULL DEFAULT 0,
		avg_issues REAL NOT NULL DEFAULT 0,
		avg_stars REAL NOT NULL DEFAULT 0,
		total_user_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveCommit inserts a commit document (idempotent on (user_id, sha))
func (s *sqliteStorage) SaveCommit(ctx context.Context, doc *domain.CommitDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commits (user_id, github_login, sha, message, repo_owner, repo_name,
			author_name, author_email, authored_at, additions, deletions, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, sha) DO NOTHING
	`, doc.UserID, doc.GithubLogin, doc.SHA, doc.Message, doc.RepoOwner, doc.RepoName,
		doc.AuthorName, doc.AuthorEmail, doc.AuthoredAt, doc.Additions, doc.Deletions, doc.CollectedAt)
	if err != nil {
		return fmt.Errorf("failed to save commit: %w", err)
	}
	return nil
}

// CommitExists checks whether a commit has already been collected for the user
func (s *sqliteStorage) CommitExists(ctx context.Context, userID int64, sha string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM commits WHERE user_id = ? AND sha = ?)
	`, userID, sha).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check commit existence: %w", err)
	}
	return exists, nil
}

// SavePullRequest inserts a pull request document
func (s *sqliteStorage) SavePullRequest(ctx context.Context, doc *domain.PullRequestDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pull_requests (user_id, github_login, number, title, state,
			repo_owner, repo_name, author_login, opened_at, merged_at, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, repo_owner, repo_name, number) DO NOTHING
	`, doc.UserID, doc.GithubLogin, doc.Number, doc.Title, doc.State,
		doc.RepoOwner, doc.RepoName, doc.AuthorLogin, doc.OpenedAt, doc.MergedAt, doc.CollectedAt)
	if err != nil {
		return fmt.Errorf("failed to save pull request: %w", err)
	}
	return nil
}

// PullRequestExists checks whether a pull request has already been collected
func (s *sqliteStorage) PullRequestExists(ctx context.Context, userID int64, repoOwner, repoName string, number int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM pull_requests
			WHERE user_id = ? AND repo_owner = ? AND repo_name = ? AND number = ?)
	`, userID, repoOwner, repoName, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pull request existence: %w", err)
	}
	return exists, nil
}

// SaveIssue inserts an issue document
func (s *sqliteStorage) SaveIssue(ctx context.Context, doc *domain.IssueDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (user_id, github_login, number, title, state,
			repo_owner, repo_name, author_login, opened_at, closed_at, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, repo_owner, repo_name, number) DO NOTHING
	`, doc.UserID, doc.GithubLogin, doc.Number, doc.Title, doc.State,
		doc.RepoOwner, doc.RepoName, doc.AuthorLogin, doc.OpenedAt, doc.ClosedAt, doc.CollectedAt)
	if err != nil {
		return fmt.Errorf("failed to save issue: %w", err)
	}
	return nil
}

// IssueExists checks whether an issue has already been collected
func (s *sqliteStorage) IssueExists(ctx context.Context, userID int64, repoOwner, repoName string, number int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM issues
			WHERE user_id = ? AND repo_owner = ? AND repo_name = ? AND number = ?)
	`, userID, repoOwner, repoName, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check issue existence: %w", err)
	}
	return exists, nil
}

// SaveRepository upserts a repository document
func (s *sqliteStorage) SaveRepository(ctx context.Context, doc *domain.RepositoryDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (user_id, github_login, owner, name, full_name, description,
			is_owner, is_fork, is_private, primary_language, stars, forks, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, full_name) DO UPDATE SET
			description = excluded.description,
			is_fork = excluded.is_fork,
			is_private = excluded.is_private,
			primary_language = excluded.primary_language,
			stars = excluded.stars,
			forks = excluded.forks,
			collected_at = excluded.collected_at
	`, doc.UserID, doc.GithubLogin, doc.Owner, doc.Name, doc.FullName, doc.Description,
		doc.IsOwner, doc.IsFork, doc.IsPrivate, doc.PrimaryLanguage, doc.Stars, doc.Forks, doc.CollectedAt)
	if err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	return nil
}

// SaveUserProfile upserts a user profile snapshot
func (s *sqliteStorage) SaveUserProfile(ctx context.Context, doc *domain.UserProfileDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, github_login, name, company, location,
			followers, following, public_repos, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			github_login = excluded.github_login,
			name = excluded.name,
			company = excluded.company,
			location = excluded.location,
			followers = excluded.followers,
			following = excluded.following,
			public_repos = excluded.public_repos,
			collected_at = excluded.collected_at
	`, doc.UserID, doc.GithubLogin, doc.Name, doc.Company, doc.Location,
		doc.Followers, doc.Following, doc.PublicRepos, doc.CollectedAt)
	if err != nil {
		return fmt.Errorf("failed to save user profile: %w", err)
	}
	return nil
}

// CommitsByLogin returns all collected commits for a login
func (s *sqliteStorage) CommitsByLogin(ctx context.Context, login string) ([]*domain.CommitDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, github_login, sha, message, repo_owner, repo_name,
			author_name, author_email, authored_at, additions, deletions, collected_at
		FROM commits WHERE github_login = ?
		ORDER BY authored_at
	`, login)
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var commits []*domain.CommitDocument
	for rows.Next() {
		doc := &domain.CommitDocument{}
		if err := rows.Scan(&doc.UserID, &doc.GithubLogin, &doc.SHA, &doc.Message,
			&doc.RepoOwner, &doc.RepoName, &doc.AuthorName, &doc.AuthorEmail,
			&doc.AuthoredAt, &doc.Additions, &doc.Deletions, &doc.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		commits = append(commits, doc)
	}
	return commits, rows.Err()
}

// RepositoriesByLogin returns all discovered repositories for a login
func (s *sqliteStorage) RepositoriesByLogin(ctx context.Context, login string) ([]*domain.RepositoryDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, github_login, owner, name, full_name, description,
			is_owner, is_fork, is_private, primary_language, stars, forks, collected_at
		FROM repositories WHERE github_login = ?
		ORDER BY full_name
	`, login)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer rows.Close()

	var repos []*domain.RepositoryDocument
	for rows.Next() {
		doc := &domain.RepositoryDocument{}
		if err := rows.Scan(&doc.UserID, &doc.GithubLogin, &doc.Owner, &doc.Name,
			&doc.FullName, &doc.Description, &doc.IsOwner, &doc.IsFork, &doc.IsPrivate,
			&doc.PrimaryLanguage, &doc.Stars, &doc.Forks, &doc.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		repos = append(repos, doc)
	}
	return repos, rows.Err()
}

// CountPullRequestsByLogin returns the number of collected PRs for a login
func (s *sqliteStorage) CountPullRequestsByLogin(ctx context.Context, login string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pull_requests WHERE github_login = ?
	`, login).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pull requests: %w", err)
	}
	return count, nil
}

// CountIssuesByLogin returns the number of collected issues for a login
func (s *sqliteStorage) CountIssuesByLogin(ctx context.Context, login string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues WHERE github_login = ?
	`, login).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

const jobColumns = `id, type, user_id, github_login, repo_owner, repo_name, encrypted_token,
	priority, retry_count, max_retries, "partition", scheduled_at, started_at, completed_at,
	last_error, created_at`

func scanJob(scan func(dest ...any) error) (*domain.CollectionJob, error) {
	job := &domain.CollectionJob{}
	var startedAt, completedAt sql.NullTime
	err := scan(&job.ID, &job.Type, &job.UserID, &job.GithubLogin, &job.RepoOwner,
		&job.RepoName, &job.EncryptedToken, &job.Priority, &job.RetryCount, &job.MaxRetries,
		&job.Partition, &job.ScheduledAt, &startedAt, &completedAt, &job.LastError, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// EnqueueJob inserts a job into the queued partition
func (s *sqliteStorage) EnqueueJob(ctx context.Context, job *domain.CollectionJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, user_id, github_login, repo_owner, repo_name,
			encrypted_token, priority, retry_count, max_retries, "partition",
			scheduled_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, job.UserID, job.GithubLogin, job.RepoOwner, job.RepoName,
		job.EncryptedToken, job.Priority, job.RetryCount, job.MaxRetries, domain.PartitionQueued,
		job.ScheduledAt, job.LastError, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// DequeueJob atomically claims the highest-priority due job. The select and
// the guarded update run in one transaction; losing the update race returns
// no job rather than a double claim.
func (s *sqliteStorage) DequeueJob(ctx context.Context) (*domain.CollectionJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE "partition" = ? AND scheduled_at <= ?
		ORDER BY priority, scheduled_at
		LIMIT 1
	`, domain.PartitionQueued, now)

	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select due job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET "partition" = ?, started_at = ?
		WHERE id = ? AND "partition" = ?
	`, domain.PartitionProcessing, now, job.ID, domain.PartitionQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Another worker claimed it between select and update.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}

	job.Partition = domain.PartitionProcessing
	job.StartedAt = &now
	return job, nil
}

// CompleteJob moves a job to the completed partition
func (s *sqliteStorage) CompleteJob(ctx context.Context, job *domain.CollectionJob) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET "partition" = ?, completed_at = ? WHERE id = ?
	`, domain.PartitionCompleted, now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	job.Partition = domain.PartitionCompleted
	job.CompletedAt = &now
	return nil
}

// FailJob moves a job to the failed partition (dead letter)
func (s *sqliteStorage) FailJob(ctx context.Context, job *domain.CollectionJob) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET "partition" = ?, retry_count = ?, last_error = ?, completed_at = ?
		WHERE id = ?
	`, domain.PartitionFailed, job.RetryCount, job.LastError, now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	job.Partition = domain.PartitionFailed
	job.CompletedAt = &now
	return nil
}

// RequeueJob pushes a job back to the queued partition with a delay
func (s *sqliteStorage) RequeueJob(ctx context.Context, job *domain.CollectionJob, delay time.Duration) error {
	scheduledAt := time.Now().UTC().Add(delay)
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET "partition" = ?, retry_count = ?, last_error = ?, scheduled_at = ?,
			started_at = NULL
		WHERE id = ?
	`, domain.PartitionQueued, job.RetryCount, job.LastError, scheduledAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	job.Partition = domain.PartitionQueued
	job.ScheduledAt = scheduledAt
	job.StartedAt = nil
	return nil
}

// GetJob fetches a job by id
func (s *sqliteStorage) GetJob(ctx context.Context, id string) (*domain.CollectionJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("job")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// DeleteJob removes a job permanently
func (s *sqliteStorage) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("job")
	}
	return nil
}

// JobsByPartition lists the jobs in one partition
func (s *sqliteStorage) JobsByPartition(ctx context.Context, partition domain.JobPartition) ([]*domain.CollectionJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE "partition" = ?
		ORDER BY priority, scheduled_at
	`, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.CollectionJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PartitionCounts returns the job count per partition
func (s *sqliteStorage) PartitionCounts(ctx context.Context) (map[domain.JobPartition]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT "partition", COUNT(*) FROM jobs GROUP BY "partition"
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count partitions: %w", err)
	}
	defer rows.Close()

	counts := map[domain.JobPartition]int{
		domain.PartitionQueued:     0,
		domain.PartitionProcessing: 0,
		domain.PartitionCompleted:  0,
		domain.PartitionFailed:     0,
	}
	for rows.Next() {
		var partition domain.JobPartition
		var count int
		if err := rows.Scan(&partition, &count); err != nil {
			return nil, fmt.Errorf("failed to scan partition count: %w", err)
		}
		counts[partition] = count
	}
	return counts, rows.Err()
}

// RetryFailedJob moves one dead-lettered job back to queued with a fresh
// retry budget
func (s *sqliteStorage) RetryFailedJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET "partition" = ?, retry_count = 0, last_error = '',
			scheduled_at = ?, started_at = NULL, completed_at = NULL
		WHERE id = ? AND "partition" = ?
	`, domain.PartitionQueued, time.Now().UTC(), id, domain.PartitionFailed)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("failed job")
	}
	return nil
}

// RetryAllFailedJobs requeues every dead-lettered job
func (s *sqliteStorage) RetryAllFailedJobs(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET "partition" = ?, retry_count = 0, last_error = '',
			scheduled_at = ?, started_at = NULL, completed_at = NULL
		WHERE "partition" = ?
	`, domain.PartitionQueued, time.Now().UTC(), domain.PartitionFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// PruneCompletedJobs deletes completed jobs older than the cutoff
func (s *sqliteStorage) PruneCompletedJobs(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE "partition" = ? AND completed_at < ?
	`, domain.PartitionCompleted, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune completed jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// SetJobCounter creates or replaces the outstanding-job counter for a login
func (s *sqliteStorage) SetJobCounter(ctx context.Context, login string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_counters (github_login, remaining, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(github_login) DO UPDATE SET
			remaining = excluded.remaining,
			updated_at = excluded.updated_at
	`, login, count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set job counter: %w", err)
	}
	return nil
}

// AddJobCounter applies a delta to the counter atomically. The update and
// the readback share one transaction so concurrent workers see a consistent
// remaining value.
func (s *sqliteStorage) AddJobCounter(ctx context.Context, login string, delta int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin counter transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE job_counters SET remaining = remaining + ?, updated_at = ?
		WHERE github_login = ?
	`, delta, time.Now().UTC(), login)
	if err != nil {
		return 0, false, fmt.Errorf("failed to update job counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `
		SELECT remaining FROM job_counters WHERE github_login = ?
	`, login).Scan(&remaining); err != nil {
		return 0, false, fmt.Errorf("failed to read job counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit counter update: %w", err)
	}
	return remaining, true, nil
}

// GetJobCounter reads the counter for a login
func (s *sqliteStorage) GetJobCounter(ctx context.Context, login string) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT remaining FROM job_counters WHERE github_login = ?
	`, login).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get job counter: %w", err)
	}
	return count, true, nil
}

// DeleteJobCounter removes the counter row for a login
func (s *sqliteStorage) DeleteJobCounter(ctx context.Context, login string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_counters WHERE github_login = ?`, login)
	if err != nil {
		return fmt.Errorf("failed to delete job counter: %w", err)
	}
	return nil
}

// DeleteJobCounterIfDone removes the counter row only when no jobs remain.
// The reported bool tells the caller whether this call removed the row.
func (s *sqliteStorage) DeleteJobCounterIfDone(ctx context.Context, login string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM job_counters WHERE github_login = ? AND remaining <= 0
	`, login)
	if err != nil {
		return false, fmt.Errorf("failed to delete job counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpsertUserStatistics writes the per-user rollup
func (s *sqliteStorage) UpsertUserStatistics(ctx context.Context, stats *domain.UserStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_statistics (github_id, total_commits, total_additions, total_deletions,
			total_lines, total_prs, total_issues, owned_repos, contributed_repos, total_stars,
			total_forks, night_commits, day_commits, main_repo_score, other_repo_score,
			pr_issue_score, reputation_score, total_score, period_start, period_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(github_id) DO UPDATE SET
			total_commits = excluded.total_commits,
			total_additions = excluded.total_additions,
			total_deletions = excluded.total_deletions,
			total_lines = excluded.total_lines,
			total_prs = excluded.total_prs,
			total_issues = excluded.total_issues,
			owned_repos = excluded.owned_repos,
			contributed_repos = excluded.contributed_repos,
			total_stars = excluded.total_stars,
			total_forks = excluded.total_forks,
			night_commits = excluded.night_commits,
			day_commits = excluded.day_commits,
			main_repo_score = excluded.main_repo_score,
			other_repo_score = excluded.other_repo_score,
			pr_issue_score = excluded.pr_issue_score,
			reputation_score = excluded.reputation_score,
			total_score = excluded.total_score,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			updated_at = excluded.updated_at
	`, stats.GithubID, stats.TotalCommits, stats.TotalAdditions, stats.TotalDeletions,
		stats.TotalLines, stats.TotalPRs, stats.TotalIssues, stats.OwnedRepos, stats.ContributedRepos,
		stats.TotalStars, stats.TotalForks, stats.NightCommits, stats.DayCommits,
		stats.MainRepoScore, stats.OtherRepoScore, stats.PRIssueScore, stats.ReputationScore,
		stats.TotalScore, stats.PeriodStart, stats.PeriodEnd, stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user statistics: %w", err)
	}
	return nil
}

// GetUserStatistics reads the per-user rollup
func (s *sqliteStorage) GetUserStatistics(ctx context.Context, githubID string) (*domain.UserStatistics, error) {
	stats := &domain.UserStatistics{}
	var periodStart, periodEnd sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT github_id, total_commits, total_additions, total_deletions, total_lines,
			total_prs, total_issues, owned_repos, contributed_repos, total_stars, total_forks,
			night_commits, day_commits, main_repo_score, other_repo_score, pr_issue_score,
			reputation_score, total_score, period_start, period_end, updated_at
		FROM user_statistics WHERE github_id = ?
	`, githubID).Scan(&stats.GithubID, &stats.TotalCommits, &stats.TotalAdditions,
		&stats.TotalDeletions, &stats.TotalLines, &stats.TotalPRs, &stats.TotalIssues,
		&stats.OwnedRepos, &stats.ContributedRepos, &stats.TotalStars, &stats.TotalForks,
		&stats.NightCommits, &stats.DayCommits, &stats.MainRepoScore, &stats.OtherRepoScore,
		&stats.PRIssueScore, &stats.ReputationScore, &stats.TotalScore,
		&periodStart, &periodEnd, &stats.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("user statistics")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user statistics: %w", err)
	}
	if periodStart.Valid {
		stats.PeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		stats.PeriodEnd = &periodEnd.Time
	}
	return stats, nil
}

// CountUserStatistics returns the number of user rollup rows
func (s *sqliteStorage) CountUserStatistics(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_statistics`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user statistics: %w", err)
	}
	return count, nil
}

// UserStatisticsAverages computes the set-level averages over all user rows
func (s *sqliteStorage) UserStatisticsAverages(ctx context.Context) (*domain.PlatformAverages, error) {
	avgs := &domain.PlatformAverages{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(total_commits), 0), COALESCE(AVG(total_prs), 0),
			COALESCE(AVG(total_issues), 0), COALESCE(AVG(total_stars), 0)
		FROM user_statistics
	`).Scan(&avgs.AvgCommits, &avgs.AvgPRs, &avgs.AvgIssues, &avgs.AvgStars)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics averages: %w", err)
	}
	return avgs, nil
}

// GetPlatformStatistics reads the singleton platform rollup
func (s *sqliteStorage) GetPlatformStatistics(ctx context.Context) (*domain.PlatformStatistics, error) {
	stats := &domain.PlatformStatistics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT key, avg_commits, avg_prs, avg_issues, avg_stars, total_user_count, updated_at
		FROM platform_statistics WHERE key = ?
	`, domain.PlatformStatKey).Scan(&stats.Key, &stats.AvgCommits, &stats.AvgPRs,
		&stats.AvgIssues, &stats.AvgStars, &stats.TotalUserCount, &stats.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("platform statistics")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform statistics: %w", err)
	}
	return stats, nil
}

// UpsertPlatformStatistics writes the singleton platform rollup
func (s *sqliteStorage) UpsertPlatformStatistics(ctx context.Context, stats *domain.PlatformStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_statistics (key, avg_commits, avg_prs, avg_issues, avg_stars,
			total_user_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			avg_commits = excluded.avg_commits,
			avg_prs = excluded.avg_prs,
			avg_issues = excluded.avg_issues,
			avg_stars = excluded.avg_stars,
			total_user_count = excluded.total_user_count,
			updated_at = excluded.updated_at
	`, stats.Key, stats.AvgCommits, stats.AvgPRs, stats.AvgIssues, stats.AvgStars,
		stats.TotalUserCount, stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert platform statistics: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
