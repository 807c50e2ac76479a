package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"newsfeed/internal/api"
	"newsfeed/internal/config"
	"newsfeed/internal/db"
	"newsfeed/internal/gnews"
	"newsfeed/internal/logger"
	"newsfeed/internal/pipeline"
	"newsfeed/internal/sources"
)

const shutdownTimeout = 15 * time.Second

// NewsApp wires the store, provider, pipeline, scheduler and HTTP API.
type NewsApp struct {
	config    *config.NewsConfig
	db        db.Store
	pipeline  *pipeline.Pipeline
	scheduler *pipeline.Scheduler
	queries   *api.QueryService
	server    *http.Server
	log       *logger.Logger
	wg        sync.WaitGroup
}

func NewNewsApp(cfg *config.NewsConfig, log *logger.Logger) (*NewsApp, error) {
	store, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	a, err := newNewsApp(cfg, store, gnews.New(cfg.Provider, log), log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func newNewsApp(cfg *config.NewsConfig, store db.Store, provider sources.Provider, log *logger.Logger) (*NewsApp, error) {
	if log == nil {
		log = logger.Discard()
	}

	p := pipeline.New(provider, store, pipeline.Options{
		Descriptors: cfg.Descriptors(),
		Policy:      cfg.RetryPolicy(),
		Window:      cfg.DedupSpan(),
		Log:         log,
	})

	hour, minute, err := cfg.DailyRunAt()
	if err != nil {
		return nil, err
	}

	queries := api.NewQueryService(store, cfg.Server.PerPage)
	srv, err := api.NewServer(queries, p, cfg.Categories(), log)
	if err != nil {
		return nil, fmt.Errorf("can't build http server: %w", err)
	}

	return &NewsApp{
		config:    cfg,
		db:        store,
		pipeline:  p,
		scheduler: pipeline.NewScheduler(p, hour, minute, log),
		queries:   queries,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}, nil
}

func (a *NewsApp) Store() db.Store {
	return a.db
}

func (a *NewsApp) Queries() *api.QueryService {
	return a.queries
}

// RunOnce performs a single fetch run.
func (a *NewsApp) RunOnce(ctx context.Context) (*pipeline.Report, error) {
	return a.pipeline.Run(ctx)
}

// Run serves until SIGINT or SIGTERM, then shuts down and closes the store.
func (a *NewsApp) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := a.Serve(ctx)
	if closeErr := a.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Serve runs the HTTP API and, when enabled, the daily scheduler until ctx
// is done.
func (a *NewsApp) Serve(ctx context.Context) error {
	a.log.Info("starting news service",
		"addr", a.config.Server.Addr,
		"driver", a.config.DB.Driver,
		"sources", len(a.config.Descriptors()),
		"daily_run_at", a.config.Logic.DailyRunAt,
		"schedule_enabled", a.config.Logic.ScheduleEnabled,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.Logic.ScheduleEnabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("scheduler stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested, stopping")
	case err = <-serveErr:
		a.log.Error("http server failed", "error", err)
	}
	cancel()

	if a.pipeline.Running() {
		a.log.Info("waiting for the active fetch run to stop")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}

	a.wg.Wait()
	return err
}

func (a *NewsApp) Close() error {
	return a.db.Close()
}
