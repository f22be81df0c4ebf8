package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/cloud/aws"
	"github.com/hugh/cloudguard/internal/cloud/azure"
	"github.com/hugh/cloudguard/internal/cloud/gcp"
	"github.com/hugh/cloudguard/internal/database"
	"github.com/hugh/cloudguard/internal/notify"
	"github.com/hugh/cloudguard/internal/scans"
	"github.com/hugh/cloudguard/internal/web"
	"github.com/hugh/cloudguard/internal/workflow"
	"github.com/hugh/cloudguard/pkg/config"
	"github.com/hugh/cloudguard/pkg/crypto"
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
	logger := util.NewLogger(cfg.Server.Env, "api")
	slog.SetDefault(logger)

	logger.Info("starting CloudGuard server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database with the application role
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// The elevated connection is only handed to the provisioner
	serviceDB, err := database.ConnectService(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database with service role", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	var redisClient redis.UniversalClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, using in-memory rate limiting", "error", err)
		_ = redisClient.Close()
		redisClient = nil
	}

	// Rate limiting is shared across instances when Redis is available
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, window)
	} else {
		memLimiter := middleware.NewMemoryLimiter(cfg.RateLimit.Requests, window)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	// Initialize encryptor for credential storage
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - credentials will be lost on restart")
	}

	// Initialize services
	verifier := auth.NewSessionVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience, cfg.Auth.Expiry())
	authService := auth.NewService(db)
	provisioner := auth.NewProvisioner(serviceDB, logger)

	validators := cloud.NewRegistry(
		aws.NewValidator(cfg.Scanner.DefaultRegion),
		azure.NewValidator(),
		gcp.NewValidator(),
	)
	accountService := accounts.NewService(db, encryptor, validators, logger)

	if cfg.Automation.WebhookURL == "" {
		logger.Warn("AUTOMATION_WEBHOOK_URL not set, scan requests will fail")
	}
	workflowClient := workflow.NewClient(cfg.Automation.WebhookURL, cfg.Automation.Timeout())
	scanService := scans.NewService(db, accountService, workflowClient, logger)

	notifier := notify.NewSlackNotifier(notify.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
	}, nil, logger)
	if !notifier.Enabled() {
		logger.Warn("SLACK_WEBHOOK_URL not set, notifications will be skipped")
	}

	// Load templates
	templates, err := web.LoadTemplates()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Get static file system
	staticFS, err := web.GetStaticFS()
	if err != nil {
		logger.Error("failed to get static fs", "error", err)
		os.Exit(1)
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		Verifier:       verifier,
		Users:          authService,
		Provisioner:    provisioner,
		Accounts:       accountService,
		Scans:          scanService,
		Notifier:       notifier,
		Limiter:        limiter,
		Templates:      templates,
		StaticFS:       staticFS,
		AllowedOrigins: cfg.CORSOrigins,
		SignInURL:      cfg.Auth.SignInURL,
		SecureCookie:   cfg.Auth.SecureCookie,
	})

	// Create HTTP server. The write timeout covers a full webhook round trip.
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Automation.Timeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Redis connection
	if redisClient != nil {
		_ = redisClient.Close()
	}

	database.Close(db)
	database.Close(serviceDB)

	logger.Info("server stopped")
}
