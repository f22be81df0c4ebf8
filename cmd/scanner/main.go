package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/cloud/aws"
	"github.com/hugh/cloudguard/internal/cloud/azure"
	"github.com/hugh/cloudguard/internal/cloud/gcp"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/scanner"
	"github.com/hugh/cloudguard/internal/tasks"
	"github.com/hugh/cloudguard/pkg/config"
	"github.com/hugh/cloudguard/pkg/queue"
	"github.com/hugh/cloudguard/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, "scanner")
	slog.SetDefault(logger)

	logger.Info("starting CloudGuard scanner",
		"addr", cfg.Scanner.Addr(),
		"default_region", cfg.Scanner.DefaultRegion,
	)

	// Results are queued for the worker when Redis is reachable; otherwise
	// they are only returned to the caller.
	var enqueuer tasks.Enqueuer
	var asynqClient *asynq.Client
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, results will not be recorded", "error", err)
	} else {
		asynqClient = queue.NewClient(&cfg.Redis)
		enqueuer = asynqClient
	}
	_ = rdb.Close()

	factories := map[models.CloudProvider]scanner.Factory{
		models.ProviderAWS: func(ctx context.Context, creds json.RawMessage) (scanner.ProviderScanner, error) {
			s, err := aws.NewScanner(ctx, creds, cfg.Scanner.DefaultRegion, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
	validators := cloud.NewRegistry(
		aws.NewValidator(cfg.Scanner.DefaultRegion),
		azure.NewValidator(),
		gcp.NewValidator(),
	)

	service := scanner.NewService(factories, validators, enqueuer, logger)
	handler := scanner.NewHandler(service, logger)

	server := &http.Server{
		Addr:         cfg.Scanner.Addr(),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("scanner listening", "addr", cfg.Scanner.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scanner...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		_ = asynqClient.Close()
	}

	logger.Info("scanner stopped")
}
