package main

import (
	"fmt"
	"log"
	"os"

	"github.com/campuscode-io/github-harvester/internal/aggregator"
	"github.com/campuscode-io/github-harvester/internal/api"
	"github.com/campuscode-io/github-harvester/internal/config"
	"github.com/campuscode-io/github-harvester/internal/queue"
	"github.com/campuscode-io/github-harvester/internal/storage"
	"github.com/campuscode-io/github-harvester/internal/storage/postgres"
	"github.com/campuscode-io/github-harvester/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	}
	defer store.Close()

	// Initialize aggregator
	agg, err := aggregator.NewAggregator(store, cfg.StatsTimezone, cfg.PlatformRecomputeThreshold)
	if err != nil {
		log.Fatalf("Failed to initialize aggregator: %v", err)
	}

	// Initialize queue producer
	tracker := queue.NewCompletionTracker(store, agg, cfg.SweepInterval)
	producer := queue.NewProducer(store, tracker, cfg.MaxRetries)

	// Initialize handler
	handler := api.NewHandler(store, producer, agg)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	fmt.Printf("Starting API server on %s\n", addr)
	fmt.Printf("Storage type: %s\n", cfg.StorageType)

	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}
