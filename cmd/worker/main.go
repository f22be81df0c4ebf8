package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/hugh/cloudguard/internal/database"
	"github.com/hugh/cloudguard/internal/notify"
	"github.com/hugh/cloudguard/internal/tasks"
	"github.com/hugh/cloudguard/pkg/config"
	"github.com/hugh/cloudguard/pkg/queue"
	"github.com/hugh/cloudguard/pkg/util"
	"github.com/joho/godotenv"
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
	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting CloudGuard worker", "redis", cfg.Redis.Addr())

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	// Recorded scans fan out notification tasks through this client
	client := queue.NewClient(&cfg.Redis)
	defer client.Close()

	notifier := notify.NewSlackNotifier(notify.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
	}, nil, logger)
	if !notifier.Enabled() {
		logger.Warn("SLACK_WEBHOOK_URL not set, notifications will be skipped")
	}

	handler := tasks.NewHandler(db, notifier, client, cfg.Scanner.ReportBaseURL, logger)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10, logger)
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down worker...")
	srv.Shutdown()

	logger.Info("worker stopped")
}
