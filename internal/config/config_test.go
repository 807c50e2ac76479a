package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsfeed/internal/sources"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

const validConfigYAML = `
db:
  driver: mongo
  connection: "mongodb://db:27017"
  database: newsdb
  collections:
    articles: stories
provider:
  base_url: "http://provider.local/rss"
  language: en
  country: US
  max_results: 5
logic:
  max_retries: 2
  backoff_base_ms: 250
  dedup_window_hours: 12
  daily_run_at: "03:30"
server:
  addr: ":9000"
  per_page: 20
logging:
  level: debug
topics: [WORLD, SPORTS]
countries:
  - name: Canada
    code: CA
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DB_DRIVER", "MONGODB_URI", "MONGODB_DB", "MONGODB_COLLECTION", "POSTGRES_DSN",
		"GNEWS_LANGUAGE", "GNEWS_COUNTRY", "GNEWS_PERIOD", "GNEWS_MAX_RESULTS", "LOG_LEVEL", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(createTempConfigFile(t, validConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DB.Database != "newsdb" || cfg.DB.Collections.Articles != "stories" {
		t.Errorf("db section not decoded: %+v", cfg.DB)
	}
	if len(cfg.Topics) != 2 || cfg.Topics[1] != "SPORTS" {
		t.Errorf("Topics = %v", cfg.Topics)
	}
	if len(cfg.Countries) != 1 || cfg.Countries[0].Code != "CA" {
		t.Errorf("Countries = %v", cfg.Countries)
	}
	if cfg.Provider.Period != "7d" {
		t.Errorf("unset fields should keep defaults, Period = %q", cfg.Provider.Period)
	}

	hour, minute, err := cfg.DailyRunAt()
	if err != nil || hour != 3 || minute != 30 {
		t.Errorf("DailyRunAt() = %d:%d, %v", hour, minute, err)
	}

	policy := cfg.RetryPolicy()
	if policy.Retries != 2 || policy.Base != 250*time.Millisecond {
		t.Errorf("RetryPolicy() = %+v", policy)
	}
	if cfg.DedupSpan() != 12*time.Hour {
		t.Errorf("DedupSpan() = %v", cfg.DedupSpan())
	}
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Logic.MaxRetries != 3 || cfg.Logic.BackoffBaseMS != 1000 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Logic)
	}
	if len(cfg.Topics) != 15 || len(cfg.Countries) != 6 {
		t.Errorf("expected default sources, got %d topics / %d countries", len(cfg.Topics), len(cfg.Countries))
	}
	if cfg.Server.PerPage != 12 {
		t.Errorf("PerPage = %d", cfg.Server.PerPage)
	}
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("../../config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Topics) != len(sources.DefaultTopics) || len(cfg.Countries) != len(sources.DefaultCountries) {
		t.Errorf("shipped config queries %d topics / %d countries, want %d / %d",
			len(cfg.Topics), len(cfg.Countries), len(sources.DefaultTopics), len(sources.DefaultCountries))
	}
	if len(cfg.Topics) != 15 || len(cfg.Countries) != 6 {
		t.Errorf("got %d topics / %d countries, want 15 / 6", len(cfg.Topics), len(cfg.Countries))
	}
	if got := cfg.DB.Timeout(); got != 10*time.Second {
		t.Errorf("DB.Timeout() = %v", got)
	}
}

func TestDescriptors_SearchesLast(t *testing.T) {
	cfg := Default()
	cfg.Topics = []string{"WORLD"}
	cfg.Countries = []sources.Country{{Name: "Canada", Code: "CA"}}
	cfg.Searches = []string{"Climate Summit"}

	got := cfg.Descriptors()
	want := []string{"country:CA", "topic:WORLD", "search:Climate Summit"}
	if len(got) != len(want) {
		t.Fatalf("Descriptors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("descriptor[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	categories := cfg.Categories()
	if last := categories[len(categories)-1]; last != "search_climate_summit" {
		t.Errorf("last category = %q", last)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("Expected error for nonexistent file, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(createTempConfigFile(t, "invalid: yaml: content: [}")); err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://env:27017")
	t.Setenv("MONGODB_COLLECTION", "env_articles")
	t.Setenv("GNEWS_MAX_RESULTS", "25")
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig(createTempConfigFile(t, validConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DB.Connection != "mongodb://env:27017" {
		t.Errorf("Connection = %q", cfg.DB.Connection)
	}
	if cfg.DB.Collections.Articles != "env_articles" {
		t.Errorf("Articles = %q", cfg.DB.Collections.Articles)
	}
	if cfg.Provider.MaxResults != 25 {
		t.Errorf("MaxResults = %d", cfg.Provider.MaxResults)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
}

func TestApplyEnv_BadMaxResults(t *testing.T) {
	cfg := Default()
	lookup := func(key string) (string, bool) {
		if key == "GNEWS_MAX_RESULTS" {
			return "many", true
		}
		return "", false
	}

	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Fatal("expected error for non-numeric GNEWS_MAX_RESULTS")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NEWSFEED_DOTENV_PROBE=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NEWSFEED_DOTENV_PROBE") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("NEWSFEED_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("env var = %q, want loaded", got)
	}
}

func TestLoadDotEnv_NoFiles(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing files should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *NewsConfig)
		wantErr error
	}{
		{"defaults", func(c *NewsConfig) {}, nil},
		{"unknown driver", func(c *NewsConfig) { c.DB.Driver = "sqlite" }, ErrUnknownDriver},
		{"mongo without uri", func(c *NewsConfig) { c.DB.Connection = "" }, ErrMissingConnection},
		{"mongo without database", func(c *NewsConfig) { c.DB.Database = "" }, ErrMissingDatabase},
		{"mongo without collection", func(c *NewsConfig) { c.DB.Collections.Articles = "" }, ErrMissingCollection},
		{"postgres without dsn", func(c *NewsConfig) { c.DB.Driver = DriverPostgres }, ErrMissingDSN},
		{"postgres with dsn", func(c *NewsConfig) {
			c.DB.Driver = DriverPostgres
			c.DB.PostgresDSN = "postgres://localhost/news"
		}, nil},
		{"memory driver", func(c *NewsConfig) {
			c.DB.Driver = DriverMemory
			c.DB.Connection = ""
		}, nil},
		{"no base url", func(c *NewsConfig) { c.Provider.BaseURL = "" }, ErrMissingBaseURL},
		{"zero max results", func(c *NewsConfig) { c.Provider.MaxResults = 0 }, ErrInvalidMaxResults},
		{"negative retries", func(c *NewsConfig) { c.Logic.MaxRetries = -1 }, ErrInvalidRetries},
		{"zero retries allowed", func(c *NewsConfig) { c.Logic.MaxRetries = 0 }, nil},
		{"negative backoff", func(c *NewsConfig) { c.Logic.BackoffBaseMS = -5 }, ErrInvalidBackoff},
		{"zero window", func(c *NewsConfig) { c.Logic.DedupWindowHours = 0 }, ErrInvalidWindow},
		{"bad run time", func(c *NewsConfig) { c.Logic.DailyRunAt = "25:99" }, ErrInvalidRunAt},
		{"no sources", func(c *NewsConfig) {
			c.Topics = nil
			c.Countries = nil
		}, ErrNoSources},
		{"only searches", func(c *NewsConfig) {
			c.Topics = nil
			c.Countries = nil
			c.Searches = []string{"climate summit"}
		}, nil},
		{"only blank searches", func(c *NewsConfig) {
			c.Topics = nil
			c.Countries = nil
			c.Searches = []string{"  "}
		}, ErrNoSources},
		{"country without code", func(c *NewsConfig) {
			c.Countries = append(c.Countries, sources.Country{Name: "Nowhere"})
		}, ErrInvalidCountry},
		{"zero per page", func(c *NewsConfig) { c.Server.PerPage = 0 }, ErrInvalidPerPage},
		{"bad log level", func(c *NewsConfig) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_String(t *testing.T) {
	if Default().String() == "" {
		t.Error("Expected non-empty string representation")
	}
}
