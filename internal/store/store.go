package store

import (
	"context"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// Store is the durable record table.
type Store interface {
	// EnsureSchema creates the records table if it does not exist.
	EnsureSchema(ctx context.Context) error
	// Reconcile upserts every record of the batch in one transaction.
	Reconcile(ctx context.Context, batch model.Batch) (model.ReconcileStats, error)
	// LoadAll returns every stored record ordered by key.
	LoadAll(ctx context.Context) ([]model.Record, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	// Close releases the underlying connection pool.
	Close() error
}
