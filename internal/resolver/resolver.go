// Package resolver maps free-text queries to records in the snapshot index.
//
// Resolution is deterministic: trim and case-fold the query, replace it by
// its canonical key if it appears in the alias table, then look the
// normalized key up in the index. There is no fuzzy matching.
package resolver

import (
	"log/slog"
	"sync/atomic"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// Source is the read side of the snapshot index.
type Source interface {
	Get(key string) (model.Record, bool)
}

type Resolver struct {
	source  Source
	aliases atomic.Pointer[Aliases]
}

func New(source Source, aliases Aliases) *Resolver {
	r := &Resolver{source: source}
	r.SetAliases(aliases)
	return r
}

// SetAliases swaps the alias table. Concurrent resolutions use either the
// old or the new table, never a mix.
func (r *Resolver) SetAliases(aliases Aliases) {
	a := Merge(nil, aliases)
	r.aliases.Store(&a)
}

// Aliases returns the table currently in use.
func (r *Resolver) Aliases() Aliases {
	return *r.aliases.Load()
}

// Canonical returns the index key a query resolves to.
func (r *Resolver) Canonical(query string) string {
	q := model.NormalizeKey(query)
	if target, ok := (*r.aliases.Load())[q]; ok {
		return target
	}
	return q
}

// Resolve returns the record matching query or model.ErrNotFound.
func (r *Resolver) Resolve(query string) (model.Record, error) {
	key := r.Canonical(query)
	if key == "" {
		return model.Record{}, model.ErrNotFound
	}
	rec, ok := r.source.Get(key)
	if !ok {
		slog.Debug("resolver: no match", "query", query, "key", key)
		return model.Record{}, model.ErrNotFound
	}
	return rec, nil
}
