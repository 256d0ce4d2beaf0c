package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"contentEngine/blob"
	"contentEngine/media"
	"contentEngine/processing"
	"contentEngine/worker/cache"
	"contentEngine/worker/config"
	"contentEngine/worker/pool"
	"contentEngine/worker/queue"
	"contentEngine/worker/repository"
	"contentEngine/worker/service"
)

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("worker starting",
		zap.Int("workers", cfg.WorkerCount),
		zap.String("queue", cfg.QueueName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connection failed", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	cancel()

	store, err := blob.NewS3Store(blob.Config{
		Endpoint:   cfg.S3Endpoint,
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		UseSSL:     cfg.S3UseSSL,
		ScratchDir: cfg.ScratchDir,
	})
	if err != nil {
		logger.Fatal("object storage connection failed", zap.Error(err))
	}

	tools := media.ResolveToolPaths()
	logger.Info("resolved transcoder binaries",
		zap.String("ffmpeg", tools.FFmpeg),
		zap.String("ffprobe", tools.FFprobe),
	)
	engine := media.NewEngine(tools, cfg.TransformTimeout, logger)

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(rdb)
	processor := processing.NewProcessor(repo, store, engine, statusCache, logger)

	consumer := queue.NewConsumer(rdb, cfg.QueueName, queue.ConsumerOptions{
		Visibility:  cfg.VisibilityTimeout,
		PollWait:    cfg.PollWait,
		MaxReceives: cfg.MaxReceives,
	})

	loops := pool.NewGroup(logger)
	for i := 0; i < cfg.WorkerCount; i++ {
		w := service.NewWorker(consumer, processor, logger.With(zap.Int("worker", i)))
		loops.Go(fmt.Sprintf("worker-%d", i), func() { w.Run(ctx) })
	}

	loops.Wait()
	logger.Info("worker stopped")
}
