package main

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"standards-archive/internal/config"
	"standards-archive/internal/lease"
	"standards-archive/internal/logger"
	"standards-archive/internal/queue"
	"standards-archive/internal/telemetry"
	"standards-archive/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal("Failed to create storage layout:", err)
	}

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("standards-worker", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracing:", err)
		}
		defer shutdown()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	repo := services.NewDocumentRepository(mongoClient.Database(cfg.DBName))

	// The daemon only reaps jobs; dispatching stays with the API, so no
	// queue client is wired here.
	supervisor := services.NewSupervisor(cfg, repo, nil, metrics)

	// Periodically reclaim leases whose working file is gone, left behind
	// by crashed worker processes.
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.Every(cfg.LeaseSweepMinutes).Minutes().Do(func() {
		removed, err := lease.SweepOrphans(cfg.WorkingDir())
		if err != nil {
			logger.Error("Lease sweep failed", "dir", cfg.WorkingDir(), "error", err)
			return
		}
		if removed > 0 {
			logger.Info("Swept orphaned leases", "removed", removed)
		}
	})
	scheduler.StartAsync()
	defer scheduler.Stop()

	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueConversions: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskConvertDocument, supervisor.HandleConvert)

	logger.Info("Starting conversion worker daemon",
		"concurrency", cfg.WorkerConcurrency,
		"queue", queue.QueueConversions,
		"redis", cfg.RedisURL)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
