package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/backyonatan-alt/casecount/internal/model"
	"github.com/backyonatan-alt/casecount/internal/parser"
	"github.com/backyonatan-alt/casecount/internal/store"
)

// Fetcher returns the raw source page.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Parser turns a page into a batch.
type Parser interface {
	Parse(body []byte, observedAt time.Time) (parser.Result, error)
}

// Index receives reconciled batches.
type Index interface {
	ApplyBatch(batch model.Batch) uint64
}

// Cache is cleared after every successful cycle.
type Cache interface {
	InvalidateAll(cycle uint64) int
}

// Pipeline orchestrates one refresh cycle:
// fetch -> parse -> reconcile -> index update -> cache invalidation.
type Pipeline struct {
	fetcher Fetcher
	parser  Parser
	store   store.Store
	index   Index
	cache   Cache
	now     func() time.Time

	running sync.Mutex

	mu     sync.RWMutex
	phase  model.Phase
	last   *model.CycleReport
	notify []func(model.CycleReport)
}

func New(f Fetcher, p Parser, s store.Store, x Index, c Cache) *Pipeline {
	return &Pipeline{
		fetcher: f,
		parser:  p,
		store:   s,
		index:   x,
		cache:   c,
		now:     time.Now,
		phase:   model.PhaseIdle,
	}
}

// Subscribe registers fn to receive every cycle report. fn runs on the
// refresh goroutine and must not block.
func (p *Pipeline) Subscribe(fn func(model.CycleReport)) {
	p.mu.Lock()
	p.notify = append(p.notify, fn)
	p.mu.Unlock()
}

// Phase returns the phase the current cycle is in, or idle.
func (p *Pipeline) Phase() model.Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// LastReport returns the report of the most recent cycle, if any ran.
func (p *Pipeline) LastReport() (model.CycleReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return model.CycleReport{}, false
	}
	return *p.last, true
}

func (p *Pipeline) enter(report *model.CycleReport, phase model.Phase) {
	report.Phase = phase
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// Run executes one refresh cycle. Any failure abandons the cycle before the
// index or cache is touched; the previous snapshot stays authoritative.
// Only one cycle runs at a time.
func (p *Pipeline) Run(ctx context.Context) (model.CycleReport, error) {
	if !p.running.TryLock() {
		return model.CycleReport{}, model.ErrCycleInProgress
	}
	defer p.running.Unlock()

	report := model.CycleReport{StartedAt: p.now()}
	slog.Info("pipeline run starting")

	err := p.run(ctx, &report)
	report.Err = err
	report.FinishedAt = p.now()
	p.finish(report)

	if err != nil {
		slog.Error("pipeline run abandoned", "phase", report.Phase, "error", err, "took", report.Duration())
		return report, err
	}
	slog.Info("pipeline run complete",
		"cycle", report.Cycle,
		"accepted", report.Accepted,
		"inserted", report.Stats.Inserted,
		"updated", report.Stats.Updated,
		"artifacts_dropped", report.ArtifactsDropped,
		"took", report.Duration())
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, report *model.CycleReport) error {
	// 1. Fetch
	p.enter(report, model.PhaseFetching)
	body, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrFetch) {
			err = errors.Join(model.ErrFetch, err)
		}
		return err
	}

	// 2. Parse
	p.enter(report, model.PhaseParsing)
	res, err := p.parser.Parse(body, report.StartedAt)
	if err != nil {
		return errors.Join(model.ErrNoRecords, err)
	}
	report.Rows, report.Accepted, report.Skipped = res.Rows, res.Accepted, res.Skipped
	if len(res.Batch.Records) == 0 {
		slog.Warn("pipeline: page had no acceptable rows", "rows", res.Rows, "skipped", res.Skipped)
		return model.ErrNoRecords
	}

	// 3. Reconcile. Nothing is visible until this commits.
	p.enter(report, model.PhaseReconciling)
	if err := ctx.Err(); err != nil {
		return err
	}
	stats, err := p.store.Reconcile(ctx, res.Batch)
	if err != nil {
		if !errors.Is(err, model.ErrStore) {
			err = errors.Join(model.ErrStore, err)
		}
		return err
	}
	report.Stats = stats

	// 4. Index update. From here on the cycle runs to completion even if
	// ctx is cancelled, so index and cache never disagree.
	p.enter(report, model.PhaseIndexUpdating)
	report.Cycle = p.index.ApplyBatch(res.Batch)

	// 5. Cache invalidation
	p.enter(report, model.PhaseCacheInvalidating)
	report.ArtifactsDropped = p.cache.InvalidateAll(report.Cycle)

	return nil
}

func (p *Pipeline) finish(report model.CycleReport) {
	p.mu.Lock()
	p.phase = model.PhaseIdle
	p.last = &report
	subs := append([]func(model.CycleReport){}, p.notify...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(report)
	}
}
