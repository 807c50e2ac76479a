// Command seed loads custom posts from a JSON array and stores them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"newsfeed/internal/app"
	"newsfeed/internal/config"
	"newsfeed/internal/logger"
	"newsfeed/internal/models"
)

func loadPosts(path string) ([]models.CustomPost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read posts file: %w", err)
	}

	var posts []models.CustomPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("failed to parse posts file: %w", err)
	}
	return posts, nil
}

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config; empty for defaults")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the config")
	postsPath := pflag.StringP("posts", "p", "custom_posts_payload.json", "JSON array of custom posts")
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

	posts, err := loadPosts(*postsPath)
	if err != nil {
		log.Error("can't load posts", "error", err)
		os.Exit(1)
	}
	log.Info("posts loaded", "count", len(posts), "file", *postsPath)

	newsApp, err := app.NewNewsApp(cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer newsApp.Close()

	failed := 0
	for _, post := range posts {
		article, err := newsApp.Queries().CreateCustomPost(context.Background(), post)
		if err != nil {
			failed++
			log.Error("failed to insert post", "title", post.Title, "error", err)
			continue
		}
		log.Info("post inserted", "url", article.URL, "published_date", article.PublishedDate)
	}

	if failed > 0 {
		log.Warn("some posts were not inserted", "failed", failed, "total", len(posts))
	}
}
