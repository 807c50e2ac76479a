package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"newsfeed/internal/models"
)

// Memory is an in-process Store for local runs and tests. Contents are lost
// on exit.
type Memory struct {
	mu       sync.RWMutex
	articles map[string]models.Article
}

func NewMemory() *Memory {
	return &Memory{articles: make(map[string]models.Article)}
}

func (m *Memory) RecentURLs(ctx context.Context, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var urls []string
	for u, a := range m.articles {
		if !a.CreatedAt.Before(since) {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

func (m *Memory) UpsertMany(ctx context.Context, articles []models.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range articles {
		m.articles[a.URL] = a
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, article models.Article) error {
	return m.UpsertMany(ctx, []models.Article{article})
}

func (m *Memory) matching(f Filter) []models.Article {
	search := strings.ToLower(f.Search)

	var out []models.Article
	for _, a := range m.articles {
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.Description), search) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishedDate != out[j].PublishedDate {
			return out[i].PublishedDate > out[j].PublishedDate
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func (m *Memory) List(ctx context.Context, f Filter) ([]models.Article, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.matching(f)
	total := int64(len(all))

	start := f.skip()
	if start > total {
		start = total
	}
	end := total
	if f.PerPage > 0 && start+int64(f.PerPage) < end {
		end = start + int64(f.PerPage)
	}

	page := make([]models.Article, 0, end-start)
	page = append(page, all[start:end]...)
	return page, total, nil
}

func (m *Memory) Get(ctx context.Context, url string) (*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[url]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) Related(ctx context.Context, article models.Article, n int) ([]models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Article{}
	for _, a := range m.matching(Filter{Category: article.Category}) {
		if len(out) >= n {
			break
		}
		if a.URL != article.URL {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.matching(f))), nil
}

func (m *Memory) Close() error {
	return nil
}
