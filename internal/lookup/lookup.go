// Package lookup is the query surface of the service: it resolves free-text
// names to records and attaches a cached artifact when one can be rendered.
// Every failure in the artifact path degrades to the record's text summary.
package lookup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/backyonatan-alt/casecount/internal/cache"
	"github.com/backyonatan-alt/casecount/internal/index"
	"github.com/backyonatan-alt/casecount/internal/model"
	"github.com/backyonatan-alt/casecount/internal/resolver"
)

// Renderer produces an artifact for a record.
type Renderer interface {
	Enabled() bool
	Render(ctx context.Context, rec model.Record) (model.ArtifactRef, error)
}

// Answer is everything a client needs to reply to one query.
type Answer struct {
	Record   model.Record       `json:"record"`
	Text     string             `json:"text"`
	Artifact *model.ArtifactRef `json:"artifact,omitempty"`
}

type Service struct {
	resolver *resolver.Resolver
	index    *index.Index
	cache    *cache.Cache
	renderer Renderer
}

func New(r *resolver.Resolver, x *index.Index, c *cache.Cache, renderer Renderer) *Service {
	return &Service{resolver: r, index: x, cache: c, renderer: renderer}
}

// Resolve returns the record for text or model.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, text string) (model.Record, error) {
	return s.resolver.Resolve(text)
}

// Artifact returns the rendered artifact for text. The boolean is false when
// the name is unknown, rendering is disabled, or the render failed.
func (s *Service) Artifact(ctx context.Context, text string) (model.ArtifactRef, bool) {
	rec, cycle, ok := s.index.Lookup(s.resolver.Canonical(text))
	if !ok {
		return model.ArtifactRef{}, false
	}
	return s.artifact(ctx, rec, cycle)
}

func (s *Service) artifact(ctx context.Context, rec model.Record, cycle uint64) (model.ArtifactRef, bool) {
	if s.renderer == nil || !s.renderer.Enabled() {
		return model.ArtifactRef{}, false
	}
	ref, err := s.cache.Populate(ctx, rec.Key, cycle, func(ctx context.Context) (model.ArtifactRef, error) {
		return s.renderer.Render(ctx, rec)
	})
	if err != nil {
		if !errors.Is(err, model.ErrRender) {
			slog.Debug("lookup: artifact unavailable", "key", rec.Key, "error", err)
		}
		return model.ArtifactRef{}, false
	}
	return ref, true
}

// Answer resolves text and bundles the record, its text summary and, when
// available, its artifact.
func (s *Service) Answer(ctx context.Context, text string) (Answer, error) {
	rec, cycle, ok := s.index.Lookup(s.resolver.Canonical(text))
	if !ok {
		return Answer{}, model.ErrNotFound
	}
	ans := Answer{Record: rec, Text: rec.Summary()}
	if ref, ok := s.artifact(ctx, rec, cycle); ok {
		ans.Artifact = &ref
	}
	return ans, nil
}

// Records lists every record in the snapshot.
func (s *Service) Records() []model.Record {
	return s.index.Records()
}

// Len returns the number of records in the snapshot.
func (s *Service) Len() int {
	return s.index.Len()
}
