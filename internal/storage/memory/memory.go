// Package memory implements the Storage interface with in-process maps.
// It backs unit tests and local experiments; the durable backends live in
// the sqlite and postgres packages.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

type memoryStorage struct {
	mu sync.Mutex

	commits      map[string]*domain.CommitDocument
	pullRequests map[string]*domain.PullRequestDocument
	issues       map[string]*domain.IssueDocument
	repositories map[string]*domain.RepositoryDocument
	profiles     map[int64]*domain.UserProfileDocument
	jobs         map[string]*domain.CollectionJob
	counters     map[string]int
	userStats    map[string]*domain.UserStatistics
	platform     *domain.PlatformStatistics
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() storage.Storage {
	return &memoryStorage{
		commits:      make(map[string]*domain.CommitDocument),
		pullRequests: make(map[string]*domain.PullRequestDocument),
		issues:       make(map[string]*domain.IssueDocument),
		repositories: make(map[string]*domain.RepositoryDocument),
		profiles:     make(map[int64]*domain.UserProfileDocument),
		jobs:         make(map[string]*domain.CollectionJob),
		counters:     make(map[string]int),
		userStats:    make(map[string]*domain.UserStatistics),
	}
}

func commitKey(userID int64, sha string) string {
	return strings.Join([]string{itoa(userID), sha}, "|")
}

func entityKey(userID int64, owner, name string, number int) string {
	return strings.Join([]string{itoa(userID), owner, name, itoa(int64(number))}, "|")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func (s *memoryStorage) SaveCommit(ctx context.Context, doc *domain.CommitDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := commitKey(doc.UserID, doc.SHA)
	if _, ok := s.commits[key]; !ok {
		c := *doc
		s.commits[key] = &c
	}
	return nil
}

func (s *memoryStorage) CommitExists(ctx context.Context, userID int64, sha string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.commits[commitKey(userID, sha)]
	return ok, nil
}

func (s *memoryStorage) SavePullRequest(ctx context.Context, doc *domain.PullRequestDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(doc.UserID, doc.RepoOwner, doc.RepoName, doc.Number)
	if _, ok := s.pullRequests[key]; !ok {
		p := *doc
		s.pullRequests[key] = &p
	}
	return nil
}

func (s *memoryStorage) PullRequestExists(ctx context.Context, userID int64, repoOwner, repoName string, number int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pullRequests[entityKey(userID, repoOwner, repoName, number)]
	return ok, nil
}

func (s *memoryStorage) SaveIssue(ctx context.Context, doc *domain.IssueDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(doc.UserID, doc.RepoOwner, doc.RepoName, doc.Number)
	if _, ok := s.issues[key]; !ok {
		i := *doc
		s.issues[key] = &i
	}
	return nil
}

func (s *memoryStorage) IssueExists(ctx context.Context, userID int64, repoOwner, repoName string, number int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.issues[entityKey(userID, repoOwner, repoName, number)]
	return ok, nil
}

func (s *memoryStorage) SaveRepository(ctx context.Context, doc *domain.RepositoryDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *doc
	s.repositories[itoa(doc.UserID)+"|"+doc.FullName] = &r
	return nil
}

func (s *memoryStorage) SaveUserProfile(ctx context.Context, doc *domain.UserProfileDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *doc
	s.profiles[doc.UserID] = &p
	return nil
}

func (s *memoryStorage) CommitsByLogin(ctx context.Context, login string) ([]*domain.CommitDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.CommitDocument
	for _, c := range s.commits {
		if c.GithubLogin == login {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuthoredAt.Before(out[j].AuthoredAt) })
	return out, nil
}

func (s *memoryStorage) RepositoriesByLogin(ctx context.Context, login string) ([]*domain.RepositoryDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.RepositoryDocument
	for _, r := range s.repositories {
		if r.GithubLogin == login {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *memoryStorage) CountPullRequestsByLogin(ctx context.Context, login string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.pullRequests {
		if p.GithubLogin == login {
			count++
		}
	}
	return count, nil
}

func (s *memoryStorage) CountIssuesByLogin(ctx context.Context, login string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, i := range s.issues {
		if i.GithubLogin == login {
			count++
		}
	}
	return count, nil
}

func (s *memoryStorage) EnqueueJob(ctx context.Context, job *domain.CollectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *job
	j.Partition = domain.PartitionQueued
	s.jobs[j.ID] = &j
	return nil
}

func (s *memoryStorage) DequeueJob(ctx context.Context) (*domain.CollectionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	var due []*domain.CollectionJob
	for _, j := range s.jobs {
		if j.Partition == domain.PartitionQueued && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	job := due[0]
	job.Partition = domain.PartitionProcessing
	job.StartedAt = &now
	claimed := *job
	return &claimed, nil
}

func (s *memoryStorage) CompleteJob(ctx context.Context, job *domain.CollectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return apperrors.NewNotFoundError("job")
	}
	now := time.Now().UTC()
	stored.Partition = domain.PartitionCompleted
	stored.CompletedAt = &now
	job.Partition = domain.PartitionCompleted
	job.CompletedAt = &now
	return nil
}

func (s *memoryStorage) FailJob(ctx context.Context, job *domain.CollectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return apperrors.NewNotFoundError("job")
	}
	now := time.Now().UTC()
	stored.Partition = domain.PartitionFailed
	stored.RetryCount = job.RetryCount
	stored.LastError = job.LastError
	stored.CompletedAt = &now
	job.Partition = domain.PartitionFailed
	job.CompletedAt = &now
	return nil
}

func (s *memoryStorage) RequeueJob(ctx context.Context, job *domain.CollectionJob, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return apperrors.NewNotFoundError("job")
	}
	scheduledAt := time.Now().UTC().Add(delay)
	stored.Partition = domain.PartitionQueued
	stored.RetryCount = job.RetryCount
	stored.LastError = job.LastError
	stored.ScheduledAt = scheduledAt
	stored.StartedAt = nil
	job.Partition = domain.PartitionQueued
	job.ScheduledAt = scheduledAt
	return nil
}

func (s *memoryStorage) GetJob(ctx context.Context, id string) (*domain.CollectionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("job")
	}
	copied := *j
	return &copied, nil
}

func (s *memoryStorage) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return apperrors.NewNotFoundError("job")
	}
	delete(s.jobs, id)
	return nil
}

func (s *memoryStorage) JobsByPartition(ctx context.Context, partition domain.JobPartition) ([]*domain.CollectionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.CollectionJob
	for _, j := range s.jobs {
		if j.Partition == partition {
			copied := *j
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (s *memoryStorage) PartitionCounts(ctx context.Context) (map[domain.JobPartition]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.JobPartition]int{
		domain.PartitionQueued:     0,
		domain.PartitionProcessing: 0,
		domain.PartitionCompleted:  0,
		domain.PartitionFailed:     0,
	}
	for _, j := range s.jobs {
		counts[j.Partition]++
	}
	return counts, nil
}

func (s *memoryStorage) RetryFailedJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Partition != domain.PartitionFailed {
		return apperrors.NewNotFoundError("failed job")
	}
	j.Partition = domain.PartitionQueued
	j.RetryCount = 0
	j.LastError = ""
	j.ScheduledAt = time.Now().UTC()
	j.StartedAt = nil
	j.CompletedAt = nil
	return nil
}

func (s *memoryStorage) RetryAllFailedJobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for _, j := range s.jobs {
		if j.Partition != domain.PartitionFailed {
			continue
		}
		j.Partition = domain.PartitionQueued
		j.RetryCount = 0
		j.LastError = ""
		j.ScheduledAt = now
		j.StartedAt = nil
		j.CompletedAt = nil
		count++
	}
	return count, nil
}

func (s *memoryStorage) PruneCompletedJobs(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, j := range s.jobs {
		if j.Partition == domain.PartitionCompleted && j.CompletedAt != nil && j.CompletedAt.Before(olderThan) {
			delete(s.jobs, id)
			count++
		}
	}
	return count, nil
}

func (s *memoryStorage) SetJobCounter(ctx context.Context, login string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[login] = count
	return nil
}

func (s *memoryStorage) AddJobCounter(ctx context.Context, login string, delta int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.counters[login]
	if !ok {
		return 0, false, nil
	}
	current += delta
	s.counters[login] = current
	return current, true, nil
}

func (s *memoryStorage) GetJobCounter(ctx context.Context, login string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counters[login]
	return count, ok, nil
}

func (s *memoryStorage) DeleteJobCounter(ctx context.Context, login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, login)
	return nil
}

func (s *memoryStorage) DeleteJobCounterIfDone(ctx context.Context, login string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counters[login]
	if !ok || count > 0 {
		return false, nil
	}
	delete(s.counters, login)
	return true, nil
}

func (s *memoryStorage) UpsertUserStatistics(ctx context.Context, stats *domain.UserStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *stats
	s.userStats[stats.GithubID] = &copied
	return nil
}

func (s *memoryStorage) GetUserStatistics(ctx context.Context, githubID string) (*domain.UserStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.userStats[githubID]
	if !ok {
		return nil, apperrors.NewNotFoundError("user statistics")
	}
	copied := *stats
	return &copied, nil
}

func (s *memoryStorage) CountUserStatistics(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.userStats), nil
}

func (s *memoryStorage) UserStatisticsAverages(ctx context.Context) (*domain.PlatformAverages, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	avgs := &domain.PlatformAverages{}
	if len(s.userStats) == 0 {
		return avgs, nil
	}
	for _, st := range s.userStats {
		avgs.AvgCommits += float64(st.TotalCommits)
		avgs.AvgPRs += float64(st.TotalPRs)
		avgs.AvgIssues += float64(st.TotalIssues)
		avgs.AvgStars += float64(st.TotalStars)
	}
	n := float64(len(s.userStats))
	avgs.AvgCommits /= n
	avgs.AvgPRs /= n
	avgs.AvgIssues /= n
	avgs.AvgStars /= n
	return avgs, nil
}

func (s *memoryStorage) GetPlatformStatistics(ctx context.Context) (*domain.PlatformStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.platform == nil {
		return nil, apperrors.NewNotFoundError("platform statistics")
	}
	copied := *s.platform
	return &copied, nil
}

func (s *memoryStorage) UpsertPlatformStatistics(ctx context.Context, stats *domain.PlatformStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *stats
	s.platform = &copied
	return nil
}

func (s *memoryStorage) Migrate(ctx context.Context) error { return nil }

func (s *memoryStorage) Close() error { return nil }
