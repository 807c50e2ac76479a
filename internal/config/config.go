package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"newsfeed/internal/retry"
	"newsfeed/internal/sources"
)

var (
	ErrUnknownDriver     = errors.New("db.driver must be 'mongo', 'postgres' or 'memory'")
	ErrMissingConnection = errors.New("db.connection is required for mongo")
	ErrMissingDatabase   = errors.New("db.database is required for mongo")
	ErrMissingCollection = errors.New("db.collections.articles is required for mongo")
	ErrMissingDSN        = errors.New("db.postgres_dsn is required for postgres")
	ErrMissingBaseURL    = errors.New("provider.base_url is required")
	ErrInvalidMaxResults = errors.New("provider.max_results must be at least 1")
	ErrInvalidRetries    = errors.New("logic.max_retries must be non-negative")
	ErrInvalidBackoff    = errors.New("logic.backoff_base_ms must be non-negative")
	ErrInvalidWindow     = errors.New("logic.dedup_window_hours must be at least 1")
	ErrInvalidRunAt      = errors.New("logic.daily_run_at must be HH:MM")
	ErrNoSources         = errors.New("at least one topic, country or search is required")
	ErrInvalidCountry    = errors.New("country name and code are required")
	ErrInvalidPerPage    = errors.New("server.per_page must be at least 1")
	ErrInvalidLogLevel   = errors.New("logging.level must be one of: debug, info, warn, error")
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DBConfig struct {
	Driver      string `yaml:"driver"`
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	Collections struct {
		Articles string `yaml:"articles"`
	} `yaml:"collections"`
	PostgresDSN string `yaml:"postgres_dsn"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

type ProviderConfig struct {
	Name          string `yaml:"name"`
	BaseURL       string `yaml:"base_url"`
	Language      string `yaml:"language"`
	Country       string `yaml:"country"`
	Period        string `yaml:"period"`
	MaxResults    int    `yaml:"max_results"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	UserAgent     string `yaml:"user_agent"`
	RespectRobots bool   `yaml:"respect_robots"`
}

type LogicConfig struct {
	MaxRetries       int    `yaml:"max_retries"`
	BackoffBaseMS    int    `yaml:"backoff_base_ms"`
	DedupWindowHours int    `yaml:"dedup_window_hours"`
	ScheduleEnabled  bool   `yaml:"schedule_enabled"`
	DailyRunAt       string `yaml:"daily_run_at"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	PerPage int    `yaml:"per_page"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type NewsConfig struct {
	DB        DBConfig          `yaml:"db"`
	Provider  ProviderConfig    `yaml:"provider"`
	Logic     LogicConfig       `yaml:"logic"`
	Server    ServerConfig      `yaml:"server"`
	Logging   LoggingConfig     `yaml:"logging"`
	Topics    []string          `yaml:"topics"`
	Countries []sources.Country `yaml:"countries"`
	Searches  []string          `yaml:"searches"`
}

func Default() *NewsConfig {
	policy := retry.DefaultPolicy()
	cfg := &NewsConfig{
		DB: DBConfig{
			Driver:     DriverMongo,
			Connection: "mongodb://localhost:27017",
			Database:   "blogdb",
			TimeoutSec: 10,
		},
		Provider: ProviderConfig{
			Name:       "gnews",
			BaseURL:    "https://news.google.com/rss",
			Language:   "en",
			Country:    "NG",
			Period:     "7d",
			MaxResults: 10,
			TimeoutSec: 30,
			UserAgent:  "Mozilla/5.0 (compatible; NewsfeedBot/1.0)",
		},
		Logic: LogicConfig{
			MaxRetries:       policy.Retries,
			BackoffBaseMS:    int(policy.Base / time.Millisecond),
			DedupWindowHours: 24,
			ScheduleEnabled:  true,
			DailyRunAt:       "01:00",
		},
		Server: ServerConfig{
			Addr:    ":8000",
			PerPage: 12,
		},
		Logging: LoggingConfig{Level: "info"},
	}
	cfg.DB.Collections.Articles = "articles"
	cfg.Topics = append([]string(nil), sources.DefaultTopics...)
	cfg.Countries = append([]sources.Country(nil), sources.DefaultCountries...)
	return cfg
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (*NewsConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the variables the original deployment used.
func (c *NewsConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DB_DRIVER", &c.DB.Driver)
	str("MONGODB_URI", &c.DB.Connection)
	str("MONGODB_DB", &c.DB.Database)
	str("MONGODB_COLLECTION", &c.DB.Collections.Articles)
	str("POSTGRES_DSN", &c.DB.PostgresDSN)
	str("GNEWS_LANGUAGE", &c.Provider.Language)
	str("GNEWS_COUNTRY", &c.Provider.Country)
	str("GNEWS_PERIOD", &c.Provider.Period)
	str("LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("GNEWS_MAX_RESULTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GNEWS_MAX_RESULTS: %w", err)
		}
		c.Provider.MaxResults = n
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}

	return nil
}

func (c *NewsConfig) Validate() error {
	switch c.DB.Driver {
	case DriverMongo:
		if c.DB.Connection == "" {
			return ErrMissingConnection
		}
		if c.DB.Database == "" {
			return ErrMissingDatabase
		}
		if c.DB.Collections.Articles == "" {
			return ErrMissingCollection
		}
	case DriverPostgres:
		if c.DB.PostgresDSN == "" {
			return ErrMissingDSN
		}
	case DriverMemory:
	default:
		return ErrUnknownDriver
	}

	if c.Provider.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.Provider.MaxResults < 1 {
		return ErrInvalidMaxResults
	}

	if c.Logic.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.Logic.BackoffBaseMS < 0 {
		return ErrInvalidBackoff
	}
	if c.Logic.DedupWindowHours < 1 {
		return ErrInvalidWindow
	}
	if _, _, err := c.DailyRunAt(); err != nil {
		return err
	}

	if len(c.Topics) == 0 && len(c.Countries) == 0 && len(sources.Searches(c.Searches)) == 0 {
		return ErrNoSources
	}
	for i, country := range c.Countries {
		if country.Name == "" || country.Code == "" {
			return fmt.Errorf("%w: countries[%d]", ErrInvalidCountry, i)
		}
	}

	if c.Server.PerPage < 1 {
		return ErrInvalidPerPage
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	return nil
}

// DailyRunAt parses logic.daily_run_at.
func (c *NewsConfig) DailyRunAt() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Logic.DailyRunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRunAt, c.Logic.DailyRunAt)
	}
	return t.Hour(), t.Minute(), nil
}

func (c *NewsConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		Retries: c.Logic.MaxRetries,
		Base:    time.Duration(c.Logic.BackoffBaseMS) * time.Millisecond,
	}
}

// Descriptors is the run order: countries, topics, then free-text searches.
func (c *NewsConfig) Descriptors() []sources.Descriptor {
	return append(sources.Enumerate(c.Topics, c.Countries), sources.Searches(c.Searches)...)
}

// Categories lists every category tag the configured sources produce.
func (c *NewsConfig) Categories() []string {
	out := sources.Categories(c.Topics, c.Countries)
	for _, d := range sources.Searches(c.Searches) {
		out = append(out, d.Category())
	}
	return out
}

func (c *NewsConfig) DedupSpan() time.Duration {
	return time.Duration(c.Logic.DedupWindowHours) * time.Hour
}

// Timeout bounds each store operation; zero leaves the driver default.
func (d DBConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

func (p *ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

func (c *NewsConfig) String() string {
	return fmt.Sprintf(
		"NewsConfig{Driver: %s, Topics: %d, Countries: %d, Retries: %d, RunAt: %s}",
		c.DB.Driver,
		len(c.Topics),
		len(c.Countries),
		c.Logic.MaxRetries,
		c.Logic.DailyRunAt,
	)
}
