package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// Runner executes one refresh cycle.
type Runner interface {
	Run(ctx context.Context) (model.CycleReport, error)
}

// Scheduler runs the pipeline once at start and then again interval after
// each cycle finishes. Cycles never overlap.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(r Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
	}
}

// Start runs cycles until ctx is cancelled or Stop is called. Blocks.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	slog.Info("scheduler started", "interval", s.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.interval)
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	slog.Info("scheduler: triggering pipeline run")
	_, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrCycleInProgress):
		slog.Info("scheduler: cycle already running, skipping")
	case ctx.Err() != nil:
		slog.Info("scheduler: cycle interrupted by shutdown", "error", err)
	default:
		slog.Error("scheduler: pipeline run failed", "error", err)
	}
}

// Stop cancels any in-flight cycle and waits for Start to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
