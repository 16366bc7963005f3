package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyonatan-alt/casecount/internal/model"
)

func staticRender(path string, calls *atomic.Int32) RenderFunc {
	return func(ctx context.Context) (model.ArtifactRef, error) {
		calls.Add(1)
		return model.ArtifactRef{Path: path, ContentType: "image/png"}, nil
	}
}

func TestPopulate_CachesWithinCycle(t *testing.T) {
	c := New(time.Second)
	var calls atomic.Int32

	ref, err := c.Populate(context.Background(), "ethiopia", 0, staticRender("a.png", &calls))
	require.NoError(t, err)
	assert.Equal(t, "a.png", ref.Path)
	assert.Equal(t, uint64(0), ref.Cycle)

	ref, err = c.Populate(context.Background(), "ethiopia", 0, staticRender("b.png", &calls))
	require.NoError(t, err)
	assert.Equal(t, "a.png", ref.Path)
	assert.Equal(t, int32(1), calls.Load())

	got, ok := c.Lookup("ethiopia", 0)
	require.True(t, ok)
	assert.Equal(t, "a.png", got.Path)
}

func TestPopulate_CoalescesConcurrentMisses(t *testing.T) {
	c := New(5 * time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	render := func(ctx context.Context) (model.ArtifactRef, error) {
		calls.Add(1)
		<-release
		return model.ArtifactRef{Path: "usa.png"}, nil
	}

	const callers = 32
	var wg sync.WaitGroup
	results := make([]model.ArtifactRef, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Populate(context.Background(), "usa", 3, render)
		}(i)
	}

	// Let every caller reach the flight before the render returns.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "usa.png", results[i].Path)
	}
}

func TestInvalidateAll_EmptiesCacheAndForcesRerender(t *testing.T) {
	c := New(time.Second)
	var calls atomic.Int32

	_, err := c.Populate(context.Background(), "ethiopia", 1, staticRender("v1.png", &calls))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	dropped := c.InvalidateAll(2)
	assert.Equal(t, 1, dropped)
	assert.Zero(t, c.Len())

	_, ok := c.Lookup("ethiopia", 2)
	assert.False(t, ok)

	ref, err := c.Populate(context.Background(), "ethiopia", 2, staticRender("v2.png", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v2.png", ref.Path)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookup_IgnoresEntriesFromOtherCycles(t *testing.T) {
	c := New(time.Second)
	var calls atomic.Int32

	_, err := c.Populate(context.Background(), "peru", 4, staticRender("p.png", &calls))
	require.NoError(t, err)

	_, ok := c.Lookup("peru", 5)
	assert.False(t, ok)
}

func TestPopulate_FailureIsRememberedForCycle(t *testing.T) {
	c := New(time.Second)
	var calls atomic.Int32
	boom := errors.New("renderer exploded")

	failing := func(ctx context.Context) (model.ArtifactRef, error) {
		calls.Add(1)
		return model.ArtifactRef{}, boom
	}

	_, err := c.Populate(context.Background(), "chad", 0, failing)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRender)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len(), "failed renders store no entry")

	_, err = c.Populate(context.Background(), "chad", 0, failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load(), "no retry within the cycle")

	c.InvalidateAll(1)
	var ok atomic.Int32
	_, err = c.Populate(context.Background(), "chad", 1, staticRender("c.png", &ok))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ok.Load())
}

func TestPopulate_TimeoutIsRenderFailure(t *testing.T) {
	c := New(50 * time.Millisecond)

	slow := func(ctx context.Context) (model.ArtifactRef, error) {
		<-ctx.Done()
		return model.ArtifactRef{}, ctx.Err()
	}

	start := time.Now()
	_, err := c.Populate(context.Background(), "mali", 0, slow)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRender)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPopulate_DropsResultsFromPreviousCycle(t *testing.T) {
	c := New(5 * time.Second)
	started := make(chan struct{})
	release := make(chan struct{})

	render := func(ctx context.Context) (model.ArtifactRef, error) {
		close(started)
		<-release
		return model.ArtifactRef{Path: "old.png"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Populate(context.Background(), "usa", 0, render)
		done <- err
	}()

	<-started
	c.InvalidateAll(1)
	close(release)
	require.NoError(t, <-done)

	assert.Zero(t, c.Len(), "render finished after invalidation must not be cached")
}

func TestStats(t *testing.T) {
	c := New(time.Second)
	var calls atomic.Int32

	_, _ = c.Populate(context.Background(), "a", 0, staticRender("a.png", &calls))
	_, _ = c.Populate(context.Background(), "a", 0, staticRender("a.png", &calls))

	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Renders)
}
