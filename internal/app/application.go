// Package app wires configuration, storage, cache, queue, analyzers and the
// pipeline into a runnable TrustCard instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/analyzer/inference"
	"github.com/prempunmagar/trustcard/internal/cache"
	"github.com/prempunmagar/trustcard/internal/config"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/pipeline"
	"github.com/prempunmagar/trustcard/internal/queue"
	"github.com/prempunmagar/trustcard/internal/scoring"
	"github.com/prempunmagar/trustcard/internal/server"
	"github.com/prempunmagar/trustcard/internal/store"
	"github.com/prempunmagar/trustcard/internal/webclient"
)

// cachePurgeInterval is how often expired sqlite cache rows are removed.
const cachePurgeInterval = 15 * time.Minute

// Application is the global runtime state container. It owns every
// long-lived component; pass it around instead of using package-level state.
type Application struct {
	Config *config.Config
	Logger logging.Logger

	Store    *store.Store
	Cache    *cache.Gate
	Queue    *queue.Queue
	Engine   *scoring.Engine
	Pipeline *pipeline.Orchestrator

	cacheStore cache.Store
	webClient  webclient.WebClient
	reputation *analyzer.SourceReputation
	started    bool
}

// New builds an Application from cfg. Nothing runs until Start or Serve.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("trustcard")
	}
	a := &Application{Config: cfg, Logger: logger}

	// Close whatever was built if a later step fails.
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	st, err := store.Open(ctx, cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	if err := a.seedSources(ctx); err != nil {
		return nil, err
	}

	if a.cacheStore, err = newCacheStore(ctx, cfg.Cache, st); err != nil {
		return nil, err
	}
	a.Cache = cache.NewGate(a.cacheStore, cfg.Cache.Backend, cache.Config{
		Namespace:     cfg.Cache.Namespace,
		PipelineTTL:   cfg.Cache.PipelineTTL.D(),
		RawContentTTL: cfg.Cache.RawTTL.D(),
		OpTimeout:     cfg.Cache.OpTimeout.D(),
	}, logger)

	a.webClient, err = webclient.NewWebClient(webclient.Config{
		Client:    webclient.Client(cfg.Analyzers.WebClient),
		Timeout:   cfg.Analyzers.FetchTimeout.D(),
		UserAgent: cfg.Analyzers.UserAgent,
		Headless:  true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}

	analyzers, err := a.buildAnalyzers()
	if err != nil {
		return nil, err
	}

	if a.Engine, err = scoring.NewEngine(cfg.Scoring, logger); err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}

	a.Queue = queue.New(queue.Config{
		Workers:      cfg.Pipeline.Workers,
		MaxAttempts:  cfg.Pipeline.TaskAttempts,
		RetryBackoff: cfg.Pipeline.RetryBackoff.D(),
	}, logger)

	a.Pipeline, err = pipeline.New(pipeline.Config{
		GroupTimeout:    cfg.Pipeline.GroupTimeout.D(),
		AnalyzerTimeout: cfg.Pipeline.AnalyzerTimeout.D(),
		StageAttempts:   cfg.Pipeline.StageAttempts,
		StaleAfter:      cfg.Pipeline.StaleAfter.D(),
		ReapInterval:    cfg.Pipeline.ReapInterval.D(),
	}, pipeline.Deps{
		Store:     st,
		Queue:     a.Queue,
		Cache:     a.Cache,
		Scorer:    a.Engine,
		Analyzers: analyzers,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new pipeline: %w", err)
	}

	ok = true
	return a, nil
}

func newCacheStore(ctx context.Context, cfg config.CacheConfig, st *store.Store) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheSQLite:
		s, err := cache.NewSQLiteStore(ctx, st.DB())
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		return s, nil
	case config.CacheMemory:
		s, err := cache.NewMemoryStore(cfg.MemorySize)
		if err != nil {
			return nil, fmt.Errorf("memory cache: %w", err)
		}
		return s, nil
	case config.CacheNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func (a *Application) buildAnalyzers() (pipeline.Analyzers, error) {
	cfg := a.Config.Analyzers
	rep, err := analyzer.NewSourceReputation(a.Store, cfg.ReputationMemo, a.Logger)
	if err != nil {
		return pipeline.Analyzers{}, err
	}
	a.reputation = rep

	an := pipeline.Analyzers{
		Extractor:  analyzer.NewPageExtractor(a.webClient, a.Logger),
		Claims:     analyzer.NewClaimHeuristics(a.Logger),
		Reputation: rep,
	}
	if cfg.InferenceURL == "" {
		a.Logger.Warn("no inference service configured, media analysis will be skipped")
		return an, nil
	}
	ic, err := inference.New(inference.Config{
		BaseURL:           cfg.InferenceURL,
		APIKey:            cfg.InferenceAPIKey,
		RequestsPerSecond: cfg.InferenceRPS,
		Burst:             cfg.InferenceBurst,
	}, a.webClient, a.Logger)
	if err != nil {
		return pipeline.Analyzers{}, fmt.Errorf("inference client: %w", err)
	}
	an.Authenticity, an.Text, an.Manipulation = ic, ic, ic
	return an, nil
}

// seedSources loads the built-in publisher directory into an empty database.
func (a *Application) seedSources(ctx context.Context) error {
	stats, err := a.Store.SourceStats(ctx)
	if err != nil {
		return fmt.Errorf("source stats: %w", err)
	}
	if stats.Total > 0 {
		return nil
	}
	n, err := a.Store.SeedSources(ctx, store.DefaultSources)
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	a.Logger.Info("seeded source directory", logging.Field{Key: "count", Value: n})
	return nil
}

// SeedSources upserts the built-in publisher directory and forgets memoized
// ratings so the next reputation check sees the new entries.
func (a *Application) SeedSources(ctx context.Context) (int, error) {
	n, err := a.Store.SeedSources(ctx, store.DefaultSources)
	if err != nil {
		return 0, fmt.Errorf("seed sources: %w", err)
	}
	if a.reputation != nil {
		a.reputation.Purge()
	}
	return n, nil
}

// Start launches the queue workers. It is enough for in-process use such as
// the analyze command; Serve calls it itself.
func (a *Application) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	if err := a.Queue.Start(ctx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	a.started = true
	return nil
}

// Analyze submits rawURL and waits for the job to finish.
func (a *Application) Analyze(ctx context.Context, rawURL string) (*model.Job, error) {
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	job, err := a.Pipeline.Submit(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return a.Pipeline.Wait(ctx, job.ID)
}

// NewServer builds the HTTP API over this application's components.
func (a *Application) NewServer() (*server.Server, error) {
	sc := a.Config.Server
	return server.NewServer(server.Config{
		ListenAddr:      sc.Addr,
		AllowedOrigins:  sc.AllowedOrigins,
		SubmitPerMinute: sc.SubmitPerMinute,
		SubmitBurst:     sc.SubmitBurst,
	}, server.Deps{
		Pipeline:  a.Pipeline,
		Cache:     a.Cache,
		Directory: a.Store,
		Queue:     a.Queue,
		Logger:    a.Logger,
	})
}

// Serve runs the HTTP API, the queue, the stale-job reaper, the cache purger
// and the weight watcher until ctx is canceled or one of them fails.
func (a *Application) Serve(ctx context.Context) error {
	srv, err := a.NewServer()
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	httpSrv := srv.HTTPServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout.D())
		defer cancel()
		a.Logger.Info("http server shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.Pipeline.Run(ctx) })
	if purger, ok := a.cacheStore.(*cache.SQLiteStore); ok {
		g.Go(func() error { return a.purgeCache(ctx, purger) })
	}
	if path := a.Config.Path; path != "" {
		g.Go(func() error {
			return config.WatchScoring(ctx, path, a.Logger, a.Engine.SetConfig)
		})
	}
	return g.Wait()
}

func (a *Application) purgeCache(ctx context.Context, s *cache.SQLiteStore) error {
	ticker := time.NewTicker(cachePurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				a.Logger.Warn("cache purge failed", logging.Field{Key: "error", Value: err.Error()})
				continue
			}
			if n > 0 {
				a.Logger.Debug("purged expired cache rows", logging.Field{Key: "count", Value: n})
			}
		}
	}
}

// Close stops the workers and releases every resource. It is safe to call
// on a partially built Application.
func (a *Application) Close() error {
	var errs []error
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.webClient != nil {
		if err := a.webClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close webclient: %w", err))
		}
	}
	if a.cacheStore != nil {
		if err := a.cacheStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
