// Package app wires the service components together from a Config.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/casecount/internal/cache"
	"github.com/backyonatan-alt/casecount/internal/config"
	"github.com/backyonatan-alt/casecount/internal/fetcher"
	"github.com/backyonatan-alt/casecount/internal/index"
	"github.com/backyonatan-alt/casecount/internal/lookup"
	"github.com/backyonatan-alt/casecount/internal/metrics"
	"github.com/backyonatan-alt/casecount/internal/model"
	"github.com/backyonatan-alt/casecount/internal/parser"
	"github.com/backyonatan-alt/casecount/internal/pipeline"
	"github.com/backyonatan-alt/casecount/internal/render"
	"github.com/backyonatan-alt/casecount/internal/resolver"
	"github.com/backyonatan-alt/casecount/internal/scheduler"
	"github.com/backyonatan-alt/casecount/internal/server"
	"github.com/backyonatan-alt/casecount/internal/store"
)

const shutdownTimeout = 10 * time.Second

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Store    store.Store
	Index    *index.Index
	Resolver *resolver.Resolver
	Cache    *cache.Cache
	Lookup   *lookup.Service
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Registry
}

// New opens the store, loads the persisted records into the index and wires
// the pipeline and query path. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, errors.Join(model.ErrStore, zerr.Wrap(err, "open store"))
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	records, err := st.LoadAll(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	x := index.New()
	x.Load(records)
	slog.Info("app: index loaded from store", "records", len(records))

	res := resolver.New(x, resolver.Merge(resolver.DefaultAliases, cfg.Aliases))
	c := cache.New(cfg.Render.Timeout)
	renderer := render.New(cfg.Render)
	if !renderer.Enabled() {
		slog.Info("app: no render endpoint configured, answers are text only")
	}

	p := pipeline.New(fetcher.New(cfg.Source), parser.New(cfg.Source), st, x, c)

	reg := metrics.NewRegistry()
	refresh := metrics.NewRefresh(reg)
	p.Subscribe(refresh.Observe)
	if renderer.Enabled() {
		p.Subscribe(renderer.PruneAfter())
	}
	registerGauges(reg, x, c)

	return &App{
		Config:   cfg,
		Store:    st,
		Index:    x,
		Resolver: res,
		Cache:    c,
		Lookup:   lookup.New(res, x, c, renderer),
		Pipeline: p,
		Metrics:  reg,
	}, nil
}

func registerGauges(reg *metrics.Registry, x *index.Index, c *cache.Cache) {
	reg.GaugeFunc("casecount_records", "Records in the snapshot index.",
		func() float64 { return float64(x.Len()) })
	reg.GaugeFunc("casecount_artifact_cache_entries", "Artifacts cached for the current cycle.",
		func() float64 { return float64(c.Len()) })
	reg.CounterFunc("casecount_artifact_cache_hits_total", "Artifact cache hits.",
		func() float64 { return float64(c.Stats().Hits) })
	reg.CounterFunc("casecount_artifact_cache_misses_total", "Artifact cache misses.",
		func() float64 { return float64(c.Stats().Misses) })
	reg.CounterFunc("casecount_artifact_cache_renders_total", "Render calls issued.",
		func() float64 { return float64(c.Stats().Renders) })
	reg.CounterFunc("casecount_artifact_cache_render_failures_total", "Render calls that failed or timed out.",
		func() float64 { return float64(c.Stats().Failures) })
}

// ReloadAliases applies the alias table of a freshly loaded config.
func (a *App) ReloadAliases(cfg *config.Config) {
	a.Resolver.SetAliases(resolver.Merge(resolver.DefaultAliases, cfg.Aliases))
	slog.Info("app: aliases reloaded", "count", len(a.Resolver.Aliases()))
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return server.New(a.Config.Server, a.Lookup, a.Pipeline, a.Cache, a.Metrics.Handler()).Router()
}

// Serve runs the scheduler and the HTTP server until ctx is cancelled, then
// shuts both down. configPath, when set, is watched for alias changes.
func (a *App) Serve(ctx context.Context, configPath string) error {
	sched := scheduler.New(a.Pipeline, a.Config.Refresh.Interval)
	httpServer := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      a.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(ctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("server starting", "port", a.Config.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.Wrap(err, "http server")
		}
		return nil
	})

	if configPath != "" {
		g.Go(func() error {
			if err := config.Watch(ctx, configPath, a.ReloadAliases); err != nil {
				slog.Warn("config watch unavailable", "path", configPath, "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})

	err := g.Wait()
	slog.Info("shutdown complete")
	return err
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
