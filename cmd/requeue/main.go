package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/qs3c/chirp_analysis/config"
	"github.com/qs3c/chirp_analysis/internal/database"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/repository"
	"github.com/qs3c/chirp_analysis/internal/service"
)

var (
	dryRun    = flag.Bool("dry-run", true, "Dry run mode, only list the jobs that would be pushed")
	olderThan = flag.Duration("older-than", 15*time.Minute, "Only requeue jobs created (or failed) before now minus this duration")
	limit     = flag.Int("limit", 100, "Max jobs to inspect per status")
)

func main() {
	flag.Parse()

	log.Println("Starting requeue task...")
	log.Printf("Mode: dry-run=%v, older-than=%s, limit=%d", *dryRun, *olderThan, *limit)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue, queue.Options{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		InitialBackoff:    cfg.Queue.InitialBackoff,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})

	jobService := service.NewJobService(
		repository.NewJobRepository(db),
		repository.NewSessionRepository(db),
		repository.NewUnlockRepository(db),
		jobQueue,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	count, err := jobService.Requeue(ctx, service.RequeueOptions{
		OlderThan:   *olderThan,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Limit:       *limit,
		DryRun:      *dryRun,
	})

	// 输出统计
	log.Println(strings.Repeat("=", 60))
	log.Println("Requeue Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Jobs pushed: %d", count)
	if err != nil {
		log.Printf("Stopped early: %v", err)
	}
	if *dryRun {
		log.Println("DRY RUN MODE - No jobs were actually pushed")
		log.Println("   Run with -dry-run=false to push them")
	}
	log.Println(strings.Repeat("=", 60))

	if err != nil {
		os.Exit(1)
	}
}
