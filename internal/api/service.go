// Package api serves the read side and the manual fetch trigger over HTTP.
package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsfeed/internal/db"
	"newsfeed/internal/models"
	"newsfeed/internal/normalizer"
)

const (
	DefaultLimit    = 10
	MaxLimit        = 100
	RelatedCount    = 3
	DefaultCategory = "general"

	summaryLength = 200
)

var ErrInvalidArticle = errors.New("invalid article")

// QueryService is the read and direct-write side of the store.
type QueryService struct {
	store   db.Store
	perPage int
	now     func() time.Time
}

func NewQueryService(store db.Store, perPage int) *QueryService {
	if perPage < 1 {
		perPage = 12
	}
	return &QueryService{store: store, perPage: perPage, now: time.Now}
}

func (s *QueryService) PerPage() int {
	return s.perPage
}

// ListArticles returns one page, newest first, and the total match count.
// Pages start at 1; perPage <= 0 uses the configured page size.
func (s *QueryService) ListArticles(ctx context.Context, category, search string, page, perPage int) ([]models.Article, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = s.perPage
	}
	return s.store.List(ctx, db.Filter{
		Category: strings.TrimSpace(category),
		Search:   strings.TrimSpace(search),
		Page:     page,
		PerPage:  perPage,
	})
}

// Latest returns up to limit articles, clamped to [1, MaxLimit].
func (s *QueryService) Latest(ctx context.Context, category string, limit int) ([]models.Article, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	articles, _, err := s.ListArticles(ctx, category, "", 1, limit)
	return articles, err
}

func (s *QueryService) GetArticle(ctx context.Context, url string) (*models.Article, error) {
	return s.store.Get(ctx, url)
}

func (s *QueryService) Related(ctx context.Context, article models.Article) ([]models.Article, error) {
	return s.store.Related(ctx, article, RelatedCount)
}

// CreateArticle upserts a hand-written article. Title and url are required;
// source defaults to custom.
func (s *QueryService) CreateArticle(ctx context.Context, a models.Article) (models.Article, error) {
	a.Title = strings.TrimSpace(a.Title)
	a.URL = normalizer.CanonicalURL(strings.TrimSpace(a.URL))
	if a.Title == "" {
		return models.Article{}, errors.Join(ErrInvalidArticle, errors.New("title is required"))
	}
	if a.URL == "" {
		return models.Article{}, errors.Join(ErrInvalidArticle, errors.New("url is required"))
	}
	if a.Source == "" {
		a.Source = models.SourceCustom
	}
	if a.Category == "" {
		a.Category = DefaultCategory
	}
	a.CreatedAt = s.now()

	if err := s.store.Upsert(ctx, a); err != nil {
		return models.Article{}, err
	}
	return a, nil
}

// CreateCustomPost stores a post under a generated /posts/<uuid> url.
func (s *QueryService) CreateCustomPost(ctx context.Context, p models.CustomPost) (models.Article, error) {
	article := models.Article{
		Title:         p.Title,
		URL:           "/posts/" + uuid.NewString(),
		PublishedDate: p.PublishedDate,
		Description:   summary(p.Content),
		Image:         p.Image,
		Publisher:     models.Publisher{Title: strings.TrimSpace(p.Author)},
		Source:        models.SourceCustom,
		Category:      strings.ToLower(strings.TrimSpace(p.Category)),
		Content:       p.Content,
		Author:        strings.TrimSpace(p.Author),
	}
	if article.PublishedDate == "" {
		article.PublishedDate = s.now().Format(time.DateOnly)
	}
	return s.CreateArticle(ctx, article)
}

// summary is the first summaryLength runes of the post's text.
func summary(content string) string {
	text := normalizer.PlainText(content)

	runes := []rune(text)
	if len(runes) <= summaryLength {
		return text
	}
	return strings.TrimSpace(string(runes[:summaryLength])) + "…"
}
