package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// timeLayout is fixed-width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// dialect differs between backends only in placeholders and DDL types.
type dialect struct {
	name string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	schema   string
}

// sqlStore implements Store on database/sql for any dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) bind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return errors.Join(model.ErrStore, zerr.With(zerr.Wrap(err, "create schema"), "driver", s.dialect.name))
	}
	return nil
}

const upsertRecord = `
	INSERT INTO records (key, display_name, total_cases, new_cases, total_deaths, new_deaths, total_recovered, observed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
		display_name    = excluded.display_name,
		total_cases     = excluded.total_cases,
		new_cases       = excluded.new_cases,
		total_deaths    = excluded.total_deaths,
		new_deaths      = excluded.new_deaths,
		total_recovered = excluded.total_recovered,
		observed_at     = excluded.observed_at
	WHERE excluded.observed_at >= records.observed_at`

func (s *sqlStore) Reconcile(ctx context.Context, batch model.Batch) (model.ReconcileStats, error) {
	var stats model.ReconcileStats
	fail := func(err error, msg string) (model.ReconcileStats, error) {
		return model.ReconcileStats{}, errors.Join(model.ErrStore, zerr.Wrap(err, msg))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.schema); err != nil {
		return fail(err, "create schema")
	}

	existing, err := existingKeys(ctx, tx)
	if err != nil {
		return fail(err, "load existing keys")
	}

	stmt, err := tx.PrepareContext(ctx, s.bind(upsertRecord))
	if err != nil {
		return fail(err, "prepare upsert")
	}
	defer stmt.Close()

	for _, r := range batch.Records {
		observedAt := r.ObservedAt
		if observedAt.IsZero() {
			observedAt = batch.ObservedAt
		}
		res, err := stmt.ExecContext(ctx,
			r.Key, r.DisplayName,
			r.Metrics.TotalCases, r.Metrics.NewCases,
			r.Metrics.TotalDeaths, r.Metrics.NewDeaths,
			r.Metrics.TotalRecovered,
			formatTime(observedAt),
		)
		if err != nil {
			return model.ReconcileStats{}, errors.Join(model.ErrStore,
				zerr.With(zerr.Wrap(err, "upsert record"), "key", r.Key))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fail(err, "rows affected")
		}

		stats.Total++
		_, known := existing[r.Key]
		switch {
		case affected == 0:
			stats.Stale++
		case known:
			stats.Updated++
		default:
			stats.Inserted++
			existing[r.Key] = struct{}{}
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(err, "commit transaction")
	}

	slog.Info("store: batch reconciled",
		"driver", s.dialect.name,
		"inserted", stats.Inserted, "updated", stats.Updated, "stale", stats.Stale)
	return stats, nil
}

func existingKeys(ctx context.Context, tx *sql.Tx) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, "SELECT key FROM records")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func (s *sqlStore) LoadAll(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, display_name, total_cases, new_cases, total_deaths, new_deaths, total_recovered, observed_at
		FROM records ORDER BY key`)
	if err != nil {
		return nil, errors.Join(model.ErrStore, zerr.Wrap(err, "query records"))
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			r          model.Record
			observedAt string
		)
		if err := rows.Scan(&r.Key, &r.DisplayName,
			&r.Metrics.TotalCases, &r.Metrics.NewCases,
			&r.Metrics.TotalDeaths, &r.Metrics.NewDeaths,
			&r.Metrics.TotalRecovered, &observedAt); err != nil {
			return nil, errors.Join(model.ErrStore, zerr.Wrap(err, "scan record"))
		}
		r.ObservedAt, err = time.Parse(timeLayout, observedAt)
		if err != nil {
			return nil, errors.Join(model.ErrStore, zerr.With(zerr.Wrap(err, "parse observed_at"), "key", r.Key))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(model.ErrStore, zerr.Wrap(err, "iterate records"))
	}
	return out, nil
}

func (s *sqlStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, errors.Join(model.ErrStore, zerr.Wrap(err, "count records"))
	}
	return n, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
