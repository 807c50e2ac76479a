package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"newsfeed/internal/db"
	"newsfeed/internal/dedup"
	"newsfeed/internal/logger"
	"newsfeed/internal/models"
	"newsfeed/internal/normalizer"
	"newsfeed/internal/retry"
	"newsfeed/internal/sources"
)

var ErrRunInProgress = errors.New("a fetch run is already in progress")

// Report summarizes one run.
type Report struct {
	Articles      []models.Article
	Duplicates    int
	Skipped       int
	FailedSources []string
	Started       time.Time
	Duration      time.Duration
}

func (r *Report) Stored() int {
	return len(r.Articles)
}

// Pipeline is the fetch, dedupe and upsert run. Sources are queried one at
// a time in enumeration order. At most one run is active per Pipeline.
type Pipeline struct {
	provider    sources.Provider
	store       db.Store
	executor    *retry.Executor
	normalizer  *normalizer.Normalizer
	descriptors []sources.Descriptor
	span        time.Duration
	now         func() time.Time
	log         *logger.Logger

	running atomic.Bool
}

type Options struct {
	Descriptors []sources.Descriptor
	Policy      retry.Policy
	Window      time.Duration
	Log         *logger.Logger
}

func New(provider sources.Provider, store db.Store, opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	span := opts.Window
	if span <= 0 {
		span = dedup.DefaultSpan
	}

	return &Pipeline{
		provider:    provider,
		store:       store,
		executor:    retry.New(opts.Policy, log),
		normalizer:  normalizer.New(provider.Name()),
		descriptors: opts.Descriptors,
		span:        span,
		now:         time.Now,
		log:         log.With("component", "pipeline"),
	}
}

// WithClock replaces the clock used for the dedup window and created_at.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	p.normalizer.WithClock(now)
	return p
}

func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// FetchAndStore runs the pipeline once and returns the stored articles.
func (p *Pipeline) FetchAndStore(ctx context.Context) ([]models.Article, error) {
	report, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	return report.Articles, nil
}

func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.running.Store(false)

	report := &Report{Started: p.now(), Articles: []models.Article{}}

	since := dedup.Since(report.Started, p.span)
	recent, err := p.store.RecentURLs(ctx, since)
	if err != nil {
		p.log.Error("failed to seed dedup window", "since", since, "error", err)
		return nil, fmt.Errorf("seed dedup window: %w", err)
	}

	window := dedup.NewWindow()
	window.Seed(recent)
	p.log.Info("run started",
		"sources", len(p.descriptors),
		"known_urls", window.Len(),
	)

	for _, d := range p.descriptors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		records, err := retry.Do(ctx, p.executor, func() ([]models.RawArticle, error) {
			return d.Query(ctx, p.provider)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("run cancelled: %w", ctx.Err())
			}
			p.log.Error("source failed, skipping", "source", d.String(), "error", err)
			report.FailedSources = append(report.FailedSources, d.String())
			continue
		}

		category := d.Category()
		accepted := 0
		for _, raw := range records {
			article := p.normalizer.Format(raw, category)
			if article.URL == "" {
				report.Skipped++
				continue
			}
			if !window.Add(article.URL) {
				report.Duplicates++
				continue
			}
			report.Articles = append(report.Articles, article)
			accepted++
		}

		p.log.Debug("source fetched",
			"source", d.String(),
			"category", category,
			"records", len(records),
			"accepted", accepted,
		)
	}

	if len(report.Articles) > 0 {
		if err := p.store.UpsertMany(ctx, report.Articles); err != nil {
			p.log.Error("bulk upsert failed", "articles", len(report.Articles), "error", err)
			return nil, fmt.Errorf("store articles: %w", err)
		}
	}

	report.Duration = p.now().Sub(report.Started)
	p.log.Info("run finished",
		"stored", report.Stored(),
		"duplicates", report.Duplicates,
		"skipped", report.Skipped,
		"failed_sources", len(report.FailedSources),
		"duration", report.Duration,
	)

	return report, nil
}
