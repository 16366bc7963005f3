package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/backyonatan-alt/casecount/internal/config"
)

// Open returns the store backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		slog.Info("store: using sqlite", "path", cfg.DSN)
		return NewSQLite(ctx, cfg.DSN)
	case "postgres":
		slog.Info("store: using postgres")
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver: %s (supported: sqlite, postgres)", cfg.Driver)
	}
}
