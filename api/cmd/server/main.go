package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"contentEngine/api/cache"
	"contentEngine/api/config"
	"contentEngine/api/database"
	"contentEngine/api/handlers"
	"contentEngine/api/middleware"
	"contentEngine/api/queue"
	"contentEngine/api/repository"
	"contentEngine/api/service"
	"contentEngine/blob"
	"contentEngine/media"
	"contentEngine/processing"
)

// inlineCache lets the inline pipeline drop stale cached job views the same
// way the worker does.
type inlineCache struct {
	c *cache.StatusCache
}

func (a inlineCache) JobChanged(ctx context.Context, jobID, status string) error {
	return a.c.Invalidate(ctx, jobID)
}

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	if cfg.Env == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connection failed", zap.Error(err))
	}
	defer db.Close()

	rdb, err := database.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

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

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(rdb)
	producer := queue.NewProducer(rdb, cfg.QueueName)

	var inline *processing.Processor
	if cfg.InlineProcessing {
		logger.Warn("inline processing enabled, jobs run inside upload requests")
		engine := media.NewEngine(media.ResolveToolPaths(), cfg.TransformTimeout, logger)
		inline = processing.NewProcessor(
			repo, store, engine, inlineCache{statusCache}, logger,
		)
	}

	jobService := service.NewJobService(
		repo, statusCache, producer, store,
		cfg.S3Bucket, cfg.PresignTTL, cfg.MaxFileSize, inline, logger,
	)
	jobHandler := handlers.NewJobHandler(jobService, logger, cfg.MaxFileSize, cfg.ScratchDir)

	r := chi.NewRouter()
	r.Use(middleware.TraceID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.Upload)
		r.Get("/jobs", jobHandler.List)
		r.Get("/jobs/{id}", jobHandler.Status)
		r.Get("/jobs/{id}/download", jobHandler.Download)
		r.Post("/jobs/from-upload", jobHandler.RegisterUpload)
		r.Post("/uploads/presign", jobHandler.Presign)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
