package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/campuscode-io/github-harvester/internal/aggregator"
	"github.com/campuscode-io/github-harvester/internal/collector"
	"github.com/campuscode-io/github-harvester/internal/config"
	"github.com/campuscode-io/github-harvester/internal/crypto"
	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/github"
	"github.com/campuscode-io/github-harvester/internal/pipeline"
	"github.com/campuscode-io/github-harvester/internal/queue"
	"github.com/campuscode-io/github-harvester/internal/storage"
	"github.com/campuscode-io/github-harvester/internal/storage/postgres"
	"github.com/campuscode-io/github-harvester/internal/storage/sqlite"
)

var (
	userID   int64
	token    string
	retryAll bool
)

var rootCmd = &cobra.Command{
	Use:   "github-harvester",
	Short: "GitHub activity harvesting tool",
	Long: `A CLI tool for harvesting GitHub user activity into a local store.

It collects commits, pull requests, issues and repository metadata either
synchronously (harvest) or through a durable job queue (enqueue + worker),
then aggregates the raw documents into per-user and platform statistics.`,
}

var harvestCmd = &cobra.Command{
	Use:   "harvest [login]",
	Short: "Run the staged harvest pipeline for one user",
	Long:  `Run the full synchronous pipeline: discovery, mining, aggregation, scoring and cleanup.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHarvest,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the collection worker",
	Long:  `Poll the durable job queue and execute collection jobs until interrupted.`,
	RunE:  runWorker,
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [login]",
	Short: "Enqueue a harvest run for one user",
	Long:  `Decompose a harvest run into collection jobs and push them onto the durable queue.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs [partition]",
	Short: "Show queue state",
	Long:  `Without arguments, show the job count per partition. With a partition name (queued, processing, completed, failed), list its jobs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobs,
}

var retryCmd = &cobra.Command{
	Use:   "retry [job-id]",
	Short: "Retry dead-lettered jobs",
	Long:  `Requeue one failed job by id, or every failed job with --all.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRetry,
}

var statsCmd = &cobra.Command{
	Use:   "stats [login]",
	Short: "Show user statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Show platform statistics",
	RunE:  runPlatform,
}

func init() {
	harvestCmd.Flags().Int64Var(&userID, "user-id", 0, "internal user id")
	harvestCmd.Flags().StringVar(&token, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")
	enqueueCmd.Flags().Int64Var(&userID, "user-id", 0, "internal user id")
	enqueueCmd.Flags().StringVar(&token, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")
	retryCmd.Flags().BoolVar(&retryAll, "all", false, "retry every failed job")

	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(platformCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func collectorFactory(cfg *config.Config, store storage.Storage) collector.Factory {
	return func(ctx context.Context, tok string) collector.Collector {
		guard := github.NewRateLimitGuard(ctx, tok)
		return collector.NewGitHubCollector(ctx, cfg.GithubGraphQLURL, tok, guard, store)
	}
}

func resolveToken() (string, error) {
	if token != "" {
		return token, nil
	}
	if env := os.Getenv("GITHUB_TOKEN"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no GitHub token: pass --token or set GITHUB_TOKEN")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tok, err := resolveToken()
	if err != nil {
		return err
	}
	agg, err := aggregator.NewAggregator(store, cfg.StatsTimezone, cfg.PlatformRecomputeThreshold)
	if err != nil {
		return err
	}

	stages := pipeline.DefaultStages(collectorFactory(cfg, store), store, agg, nil, cfg.CompletedRetention)
	user := domain.UserRef{UserID: userID, GithubLogin: args[0]}
	return pipeline.New(stages...).Run(cmd.Context(), user, tok)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	encryptor, err := crypto.NewTokenEncryptor(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	agg, err := aggregator.NewAggregator(store, cfg.StatsTimezone, cfg.PlatformRecomputeThreshold)
	if err != nil {
		return err
	}

	tracker := queue.NewCompletionTracker(store, agg, cfg.SweepInterval)
	producer := queue.NewProducer(store, tracker, cfg.MaxRetries)
	guards := func(ctx context.Context, tok string) queue.RateLimitWaiter {
		return github.NewRateLimitGuard(ctx, tok)
	}
	worker := queue.NewWorker(store, tracker, producer, encryptor,
		collectorFactory(cfg, store), guards, cfg.WorkerPollInterval)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go tracker.Run(ctx)
	worker.Run(ctx)
	return nil
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tok, err := resolveToken()
	if err != nil {
		return err
	}
	encryptor, err := crypto.NewTokenEncryptor(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	encrypted, err := encryptor.Encrypt(tok)
	if err != nil {
		return err
	}

	agg, err := aggregator.NewAggregator(store, cfg.StatsTimezone, cfg.PlatformRecomputeThreshold)
	if err != nil {
		return err
	}
	tracker := queue.NewCompletionTracker(store, agg, cfg.SweepInterval)
	producer := queue.NewProducer(store, tracker, cfg.MaxRetries)

	user := domain.UserRef{UserID: userID, GithubLogin: args[0], EncryptedToken: encrypted}
	if err := producer.EnqueueUserCollection(cmd.Context(), user); err != nil {
		return err
	}
	fmt.Printf("Enqueued collection for %s\n", args[0])
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		counts, err := store.PartitionCounts(cmd.Context())
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Partition", "Jobs"})
		for _, p := range []domain.JobPartition{
			domain.PartitionQueued, domain.PartitionProcessing,
			domain.PartitionCompleted, domain.PartitionFailed,
		} {
			table.Append([]string{string(p), fmt.Sprintf("%d", counts[p])})
		}
		table.Render()
		return nil
	}

	jobs, err := store.JobsByPartition(cmd.Context(), domain.JobPartition(args[0]))
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Type", "Login", "Repo", "Priority", "Retries", "Scheduled", "Last Error"})
	for _, j := range jobs {
		table.Append([]string{
			j.ID,
			string(j.Type),
			j.GithubLogin,
			j.RepoFullName(),
			fmt.Sprintf("%d", j.Priority),
			fmt.Sprintf("%d/%d", j.RetryCount, j.MaxRetries),
			j.ScheduledAt.Format(time.RFC3339),
			j.LastError,
		})
	}
	table.Render()
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if retryAll {
		count, err := store.RetryAllFailedJobs(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Requeued %d failed jobs\n", count)
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("pass a job id or --all")
	}
	if err := store.RetryFailedJob(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Requeued job %s\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.GetUserStatistics(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Commits", fmt.Sprintf("%d", stats.TotalCommits)})
	table.Append([]string{"Pull Requests", fmt.Sprintf("%d", stats.TotalPRs)})
	table.Append([]string{"Issues", fmt.Sprintf("%d", stats.TotalIssues)})
	table.Append([]string{"Lines Added", fmt.Sprintf("%d", stats.TotalAdditions)})
	table.Append([]string{"Lines Deleted", fmt.Sprintf("%d", stats.TotalDeletions)})
	table.Append([]string{"Night Commits", fmt.Sprintf("%d", stats.NightCommits)})
	table.Append([]string{"Day Commits", fmt.Sprintf("%d", stats.DayCommits)})
	table.Append([]string{"Owned Repos", fmt.Sprintf("%d", stats.OwnedRepos)})
	table.Append([]string{"Contributed Repos", fmt.Sprintf("%d", stats.ContributedRepos)})
	table.Append([]string{"Stars", fmt.Sprintf("%d", stats.TotalStars)})
	table.Append([]string{"Forks", fmt.Sprintf("%d", stats.TotalForks)})
	table.Append([]string{"Total Score", fmt.Sprintf("%.2f", stats.TotalScore)})
	table.Render()
	return nil
}

func runPlatform(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.GetPlatformStatistics(cmd.Context())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Avg Commits", fmt.Sprintf("%.2f", stats.AvgCommits)})
	table.Append([]string{"Avg PRs", fmt.Sprintf("%.2f", stats.AvgPRs)})
	table.Append([]string{"Avg Issues", fmt.Sprintf("%.2f", stats.AvgIssues)})
	table.Append([]string{"Avg Stars", fmt.Sprintf("%.2f", stats.AvgStars)})
	table.Append([]string{"Users", fmt.Sprintf("%d", stats.TotalUserCount)})
	table.Append([]string{"Updated", stats.UpdatedAt.Format(time.RFC3339)})
	table.Render()
	return nil
}
