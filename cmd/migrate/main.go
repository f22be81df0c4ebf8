package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/hugh/cloudguard/internal/database"
	"github.com/hugh/cloudguard/pkg/config"
	"github.com/hugh/cloudguard/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the SQL migration files")
	down := flag.Int("down", 0, "number of migrations to roll back instead of migrating up")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "migrate")

	if *down > 0 {
		if err := database.RollbackMigrations(cfg.Database.URL(), *dir, *down); err != nil {
			logger.Error("rollback failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations rolled back", "steps", *down)
		return
	}

	if err := database.RunMigrations(cfg.Database.URL(), *dir); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "dir", *dir)
}
