// Command fetch runs the news pipeline once and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"newsfeed/internal/app"
	"newsfeed/internal/config"
	"newsfeed/internal/logger"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config; empty for defaults")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the config")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Logging.Level)

	newsApp, err := app.NewNewsApp(cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer newsApp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := newsApp.RunOnce(ctx)
	if err != nil {
		log.Error("fetch failed", "error", err)
		newsApp.Close()
		os.Exit(1)
	}

	fmt.Printf("stored %d articles, skipped %d duplicates, %d sources failed\n",
		report.Stored(), report.Duplicates, len(report.FailedSources))
}
