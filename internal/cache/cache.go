// Package cache holds rendered artifacts for the current refresh cycle.
//
// Every entry is tagged with the index cycle its record was read from and is
// only served for that cycle. InvalidateAll drops every entry when a refresh
// succeeds. A key renders at most once per cycle: concurrent misses share a
// single in-flight render, and a failed render is remembered until the next
// invalidation so the renderer is not retried within the cycle.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// RenderFunc produces the artifact for one key.
type RenderFunc func(ctx context.Context) (model.ArtifactRef, error)

// Stats is a point-in-time view of the cache.
type Stats struct {
	Cycle    uint64 `json:"cycle"`
	Entries  int    `json:"entries"`
	Failed   int    `json:"failed"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Renders  uint64 `json:"renders"`
	Failures uint64 `json:"render_failures"`
}

type Cache struct {
	mu      sync.RWMutex
	cycle   uint64
	entries map[string]model.ArtifactRef
	failed  map[string]error

	group   singleflight.Group
	timeout time.Duration

	hits, misses, renders, failures uint64
}

// New creates an empty cache. Renders are bounded by timeout; zero means
// no bound.
func New(timeout time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]model.ArtifactRef),
		failed:  make(map[string]error),
		timeout: timeout,
	}
}

// Lookup returns the artifact for key if one was rendered under cycle.
func (c *Cache) Lookup(key string, cycle uint64) (model.ArtifactRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.entries[key]
	if !ok || ref.Cycle != cycle {
		c.misses++
		return model.ArtifactRef{}, false
	}
	c.hits++
	return ref, true
}

// Populate returns the artifact for key under cycle, rendering it on a miss.
// Concurrent callers for the same key and cycle share one render call. The
// render runs detached from ctx cancellation so one impatient caller does
// not fail the others, but it is bounded by the cache timeout.
func (c *Cache) Populate(ctx context.Context, key string, cycle uint64, render RenderFunc) (model.ArtifactRef, error) {
	if ref, ok := c.Lookup(key, cycle); ok {
		return ref, nil
	}
	if err := c.failure(key, cycle); err != nil {
		return model.ArtifactRef{}, err
	}

	flight := fmt.Sprintf("%d/%s", cycle, key)
	ch := c.group.DoChan(flight, func() (any, error) {
		// A concurrent flight may have finished between our miss and here.
		c.mu.RLock()
		ref, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && ref.Cycle == cycle {
			return ref, nil
		}
		if err := c.failure(key, cycle); err != nil {
			return model.ArtifactRef{}, err
		}

		renderCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			renderCtx, cancel = context.WithTimeout(renderCtx, c.timeout)
			defer cancel()
		}

		c.mu.Lock()
		c.renders++
		c.mu.Unlock()

		ref, err := render(renderCtx)
		if err != nil {
			if errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
				err = errors.Join(model.ErrRender, context.DeadlineExceeded, err)
			} else if !errors.Is(err, model.ErrRender) {
				err = errors.Join(model.ErrRender, err)
			}
		}
		ref.Cycle = cycle
		c.store(key, cycle, ref, err)
		return ref, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.ArtifactRef{}, res.Err
		}
		return res.Val.(model.ArtifactRef), nil
	case <-ctx.Done():
		return model.ArtifactRef{}, ctx.Err()
	}
}

func (c *Cache) failure(key string, cycle uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cycle != c.cycle {
		return nil
	}
	return c.failed[key]
}

// store records a render outcome unless the cache has already moved past cycle.
func (c *Cache) store(key string, cycle uint64, ref model.ArtifactRef, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle < c.cycle {
		slog.Debug("cache: dropping render from previous cycle", "key", key, "cycle", cycle, "current", c.cycle)
		return
	}
	if err != nil {
		c.failures++
		if cycle == c.cycle {
			c.failed[key] = err
		}
		slog.Warn("cache: render failed, serving text", "key", key, "cycle", cycle, "error", err)
		return
	}
	c.entries[key] = ref
}

// InvalidateAll drops every entry and failure and moves the cache to cycle.
// It returns the number of artifacts dropped.
func (c *Cache) InvalidateAll(cycle uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.entries)
	c.entries = make(map[string]model.ArtifactRef)
	c.failed = make(map[string]error)
	if cycle > c.cycle {
		c.cycle = cycle
	}
	return dropped
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Cycle:    c.cycle,
		Entries:  len(c.entries),
		Failed:   len(c.failed),
		Hits:     c.hits,
		Misses:   c.misses,
		Renders:  c.renders,
		Failures: c.failures,
	}
}
