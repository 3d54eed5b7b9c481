package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/chirp_analysis/config"
	"github.com/qs3c/chirp_analysis/internal/capability"
	"github.com/qs3c/chirp_analysis/internal/database"
	"github.com/qs3c/chirp_analysis/internal/pkg/cron"
	"github.com/qs3c/chirp_analysis/internal/pkg/oss"
	"github.com/qs3c/chirp_analysis/internal/pkg/pubsub"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/pkg/ratelimit"
	"github.com/qs3c/chirp_analysis/internal/repository"
	"github.com/qs3c/chirp_analysis/internal/reward"
	"github.com/qs3c/chirp_analysis/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 OSS（可选），未配置时只接受可直接访问的媒体地址
	var media worker.MediaResolver = oss.Passthrough{}
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			media = ossClient
			log.Println("OSS client initialized")
		}
	}

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	unlockRepo := repository.NewUnlockRepository(db)
	scenarioRepo := repository.NewScenarioRepository(db)

	// 初始化 Queue 和 Pub/Sub，过期租约回收时任务记为一次失败
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue, queue.Options{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		InitialBackoff:    cfg.Queue.InitialBackoff,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		OnReclaim:         worker.ReclaimFailer(jobRepo),
	})
	publisher := pubsub.NewPublisher(rdb)
	limiter := ratelimit.NewLimiter(rdb, cfg.Queue.AnalysisQueue+":rate", cfg.Queue.RateLimit, cfg.Queue.RateWindow)

	// 奖励规则
	rules := reward.RulesFromConfig(cfg.Rewards)
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			log.Fatalf("Invalid reward rule: %v", err)
		}
	}
	rewards := reward.NewEngine(rules, sessionRepo, unlockRepo)

	// 创建任务处理器
	clients := capability.NewClients(cfg.Capability)
	processor := worker.NewProcessor(worker.Deps{
		Jobs:     jobRepo,
		Sessions: sessionRepo,
		Rubrics:  scenarioRepo,
		Media:    media,
		Video:    clients.Video,
		Speech:   clients.Speech,
		Audio:    clients.Audio,
		Rewards:  rewards,
		Progress: publisher,
	})

	// 队列维护：到期重试与过期租约
	maintenance, err := cron.NewService(jobQueue, cron.DefaultSchedule)
	if err != nil {
		log.Fatalf("Failed to init queue maintenance: %v", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	pool := worker.NewPool(worker.PoolConfig{
		Concurrency: cfg.Queue.MaxWorkers,
		PollTimeout: cfg.Queue.PollTimeout,
		JobTimeout:  cfg.Queue.JobTimeout,
	}, jobQueue, processor, limiter)

	log.Printf("Worker started, max workers: %d, rate limit: %d per %s",
		cfg.Queue.MaxWorkers, cfg.Queue.RateLimit, cfg.Queue.RateWindow)

	// Run 在所有 worker 退出（进行中的任务结束）后返回
	if err := pool.Run(ctx); err != nil {
		log.Printf("Worker pool stopped with error: %v", err)
	}
	log.Println("Worker shutdown complete")
}
