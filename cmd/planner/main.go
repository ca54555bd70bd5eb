package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"taskplanner/internal/config"
	"taskplanner/internal/repository"
)

var Version = "dev"

var (
	configPath string
	cfg        config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "planner",
	Short:         "Task planner with recurring tasks and reminders",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger = mustMakeLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML configuration file")
	rootCmd.AddCommand(serveCmd, scanCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB opens and migrates the configured database.
func openDB() (*gorm.DB, func(), error) {
	db, err := repository.NewDB(cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db: %w", err)
	}
	closeFn := func() {
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close db connection", "error", err)
		}
	}
	return db, closeFn, nil
}

func mustMakeLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
