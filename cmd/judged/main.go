// Command judged serves the judging API and its maintenance commands.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mind-engage/judged/internal/config"
	"github.com/mind-engage/judged/internal/db"
	"github.com/mind-engage/judged/internal/judging"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "judged",
		Short:         "Concurrent application judging service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), migrateCmd(), sweepCmd(), userCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "judged version %s (build: %s)\n", Version, BuildTime)
		},
	})
	return cmd
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// setup loads config, installs the logger and opens the database.
func setup(ctx context.Context) (config.Config, *slog.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return cfg, log, nil, err
	}
	h, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return cfg, log, nil, err
	}
	return cfg, log, h, nil
}

func judgingConfig(cfg config.Config) judging.Config {
	return judging.Config{
		LockDefaultMinutes: cfg.LockDefaultMinutes,
		LockMaxMinutes:     cfg.LockMaxMinutes,
		CommentThreshold:   cfg.CommentThreshold,
		DefaultScheme:      cfg.DefaultScheme,
	}
}
