package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/chirp_analysis/config"
	"github.com/qs3c/chirp_analysis/internal/api"
	"github.com/qs3c/chirp_analysis/internal/api/handler"
	"github.com/qs3c/chirp_analysis/internal/database"
	"github.com/qs3c/chirp_analysis/internal/pkg/pubsub"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/pkg/ws"
	"github.com/qs3c/chirp_analysis/internal/repository"
	"github.com/qs3c/chirp_analysis/internal/service"
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

	// 初始化 Queue
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue, queue.Options{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		InitialBackoff:    cfg.Queue.InitialBackoff,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	unlockRepo := repository.NewUnlockRepository(db)

	// 初始化 Service
	jobService := service.NewJobService(jobRepo, sessionRepo, unlockRepo, jobQueue)
	healthService := service.NewHealthService(db, rdb, jobQueue)

	// 初始化 Handler
	jobHandler := handler.NewJobHandler(jobService)
	healthHandler := handler.NewHealthHandler(healthService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 转发 worker 进度到 WebSocket
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		for {
			err := subscriber.Subscribe(ctx, websocketHandler.Forward)
			if ctx.Err() != nil {
				return
			}
			log.Printf("Progress subscription ended: %v, retrying", err)
			time.Sleep(time.Second)
		}
	}()
	log.Println("Progress forwarding started")

	// 初始化 Router
	router := api.NewRouter(jobHandler, healthHandler, websocketHandler, cfg)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server shutdown complete")
}
