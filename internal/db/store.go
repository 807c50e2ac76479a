package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsfeed/internal/config"
	"newsfeed/internal/models"
)

var ErrNotFound = errors.New("article not found")

// Filter narrows List and Count. Zero values mean no restriction; Page
// starts at 1.
type Filter struct {
	Category string
	Search   string
	Page     int
	PerPage  int
}

func (f Filter) skip() int64 {
	if f.Page <= 1 || f.PerPage <= 0 {
		return 0
	}
	return int64((f.Page - 1) * f.PerPage)
}

// Store is the keyed article collection. URLs are unique; writing an
// existing URL replaces the stored article.
type Store interface {
	RecentURLs(ctx context.Context, since time.Time) ([]string, error)
	UpsertMany(ctx context.Context, articles []models.Article) error
	Upsert(ctx context.Context, article models.Article) error
	List(ctx context.Context, f Filter) ([]models.Article, int64, error)
	Get(ctx context.Context, url string) (*models.Article, error)
	Related(ctx context.Context, article models.Article, n int) ([]models.Article, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(cfg config.DBConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMongo, "":
		return NewMongoDB(cfg)
	case config.DriverPostgres:
		return NewPostgres(cfg)
	case config.DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}
