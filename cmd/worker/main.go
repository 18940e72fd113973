package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/smefinder/smefinder/internal/embedding"
	"github.com/smefinder/smefinder/internal/queue"
	"github.com/smefinder/smefinder/internal/storage"
	"github.com/smefinder/smefinder/internal/vector"
	"github.com/smefinder/smefinder/pkg/config"
	"github.com/smefinder/smefinder/pkg/logging"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "smefinder-worker",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err.Error())
		os.Exit(1)
	}
	defer redisClient.Close()

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(cfg.Bedrock.Region))
	cancelLoad()
	if err != nil {
		logger.Error("Failed to load AWS configuration", "error", err.Error())
		os.Exit(1)
	}

	jobQueue := queue.NewQueue(redisClient)
	worker := embedding.NewWorker(
		jobQueue,
		storage.NewTicketStore(s3.NewFromConfig(awsCfg), cfg.Storage.TicketBucket),
		embedding.NewTitanGenerator(bedrockruntime.NewFromConfig(awsCfg), cfg.Bedrock),
		vector.NewClient(cfg.Vector),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker")
		cancel()
	}()

	if pending, err := jobQueue.PendingCount(ctx); err == nil {
		logger.Info("Starting embedding worker",
			"model", cfg.Bedrock.EmbeddingModelID,
			"pending_jobs", pending)
	} else {
		logger.Info("Starting embedding worker", "model", cfg.Bedrock.EmbeddingModelID)
	}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("Worker exited")
}
