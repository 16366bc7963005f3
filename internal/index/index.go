// Package index holds the in-memory snapshot of records served to queries.
//
// The index is a read-optimized mirror of the record store. It is seeded
// from the store at startup and merged with every successfully reconciled
// batch. A batch is merged under one write lock, so a reader sees either the
// whole pre-merge or the whole post-merge map, never a mix.
package index

import (
	"sort"
	"sync"
	"time"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// Index maps normalized keys to their current record.
type Index struct {
	mu        sync.RWMutex
	records   map[string]model.Record
	cycle     uint64
	updatedAt time.Time
	now       func() time.Time
}

func New() *Index {
	return &Index{
		records: make(map[string]model.Record),
		now:     time.Now,
	}
}

// Load replaces the contents with records read from the store. The cycle
// counter is left untouched.
func (x *Index) Load(records []model.Record) {
	m := make(map[string]model.Record, len(records))
	for _, r := range records {
		m[r.Key] = r
	}

	x.mu.Lock()
	x.records = m
	x.updatedAt = x.now()
	x.mu.Unlock()
}

// ApplyBatch merges every record of batch and advances the cycle counter.
// It returns the new cycle.
func (x *Index) ApplyBatch(batch model.Batch) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range batch.Records {
		if prev, ok := x.records[r.Key]; ok && r.ObservedAt.Before(prev.ObservedAt) {
			continue
		}
		x.records[r.Key] = r
	}
	x.cycle++
	x.updatedAt = x.now()
	return x.cycle
}

// Get returns the record stored under key.
func (x *Index) Get(key string) (model.Record, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.records[key]
	return r, ok
}

// Lookup returns the record under key together with the cycle it belongs to.
func (x *Index) Lookup(key string) (model.Record, uint64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.records[key]
	return r, x.cycle, ok
}

// Records returns a copy of all records sorted by key.
func (x *Index) Records() []model.Record {
	x.mu.RLock()
	out := make([]model.Record, 0, len(x.records))
	for _, r := range x.records {
		out = append(out, r)
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

func (x *Index) Cycle() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.cycle
}

// UpdatedAt returns the last time the index contents changed.
func (x *Index) UpdatedAt() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.updatedAt
}
