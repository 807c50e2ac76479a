package main

import (
	"fmt"
	"os"

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

	if err := newsApp.Run(); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("service stopped")
}
