package main

import (
	"os"
	"strings"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/config"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
)

// Applies pending migrations against the write database.
// Usage: cli --env=.env --dir=./migrations
func main() {
	if err := config.Load(getEnvPath()); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pgConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	dir := getMigrationPath()
	if err := pg.Migrate(pgConf, dir); err != nil {
		logger.Error("migration failed", "dir", dir, "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "dir", dir)
}

func getEnvPath() string {
	if p := argValue("--env="); p != "" {
		return p
	}
	if _, err := os.Stat(".env"); err != nil {
		logger.Error("no env file found", "error", err)
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	if p := argValue("--dir="); p != "" {
		return p
	}
	return "./migrations"
}

func argValue(prefix string) string {
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}
