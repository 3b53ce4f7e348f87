package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"letterbox/internal/util"
	"letterbox/pkg/queue"
	"letterbox/services/renderer/internal/app"
	"letterbox/services/renderer/internal/config"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "renderer", cfg.LogDir)
	if cleanup != nil {
		defer cleanup()
	}

	jobs, err := queue.New(queue.Config{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.RenderStream,
		Group:      cfg.RenderGroup,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		util.Fatal("failed to init render queue", "err", err)
	}

	worker, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		Jobs:           jobs,
		Concurrency:    cfg.Concurrency,
		MetricsAddr:    cfg.MetricsAddr,
		Logger:         logger,
	})
	if err != nil {
		_ = jobs.Close()
		util.Fatal("failed to init renderer", "err", err)
	}
	defer worker.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("renderer started", "stream", cfg.RenderStream, "concurrency", cfg.Concurrency, "metrics", cfg.MetricsAddr)
	if err := worker.Run(ctx); err != nil {
		logger.Error("renderer stopped", "err", err)
	}
}
