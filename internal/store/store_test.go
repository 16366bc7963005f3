package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyonatan-alt/casecount/internal/config"
	"github.com/backyonatan-alt/casecount/internal/model"
)

func openTestStore(t *testing.T, path string) Store {
	t.Helper()
	s, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(key, cases string, at time.Time) model.Record {
	return model.Record{
		Key:         key,
		DisplayName: key,
		Metrics:     model.Metrics{TotalCases: cases},
		ObservedAt:  at,
	}
}

func TestReconcile_InsertThenUpdateInPlace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cc.db"))

	t1 := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	stats, err := s.Reconcile(ctx, model.Batch{ObservedAt: t1, Records: []model.Record{rec("ethiopia", "100", t1)}})
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileStats{Inserted: 1, Total: 1}, stats)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "100", all[0].Metrics.TotalCases)

	t2 := t1.Add(time.Hour)
	stats, err = s.Reconcile(ctx, model.Batch{ObservedAt: t2, Records: []model.Record{rec("ethiopia", "150", t2)}})
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileStats{Updated: 1, Total: 1}, stats)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err = s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "150", all[0].Metrics.TotalCases)
	assert.True(t, t2.Equal(all[0].ObservedAt))
}

func TestReconcile_CreatesSchemaOnFirstCall(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "fresh.db"))

	// No EnsureSchema: Reconcile must create the table itself.
	at := time.Now().UTC()
	_, err := s.Reconcile(ctx, model.Batch{ObservedAt: at, Records: []model.Record{rec("usa", "1", at)}})
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(ctx), "schema creation stays idempotent")
}

func TestReconcile_DurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "durable.db")

	at := time.Date(2021, 5, 2, 8, 30, 0, 123456789, time.UTC)
	batch := model.Batch{ObservedAt: at, Records: []model.Record{
		{Key: "usa", DisplayName: "USA", Metrics: model.Metrics{
			TotalCases: "33,000,000", NewCases: "+40,000", TotalDeaths: "590,000", NewDeaths: "+600", TotalRecovered: "N/A",
		}, ObservedAt: at},
		{Key: "s. korea", DisplayName: "S. Korea", Metrics: model.Metrics{TotalCases: "123,240"}, ObservedAt: at},
	}}

	first, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.EnsureSchema(ctx))
	_, err = first.Reconcile(ctx, batch)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	all, err := second.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// LoadAll orders by key.
	assert.Equal(t, "s. korea", all[0].Key)
	assert.Equal(t, "usa", all[1].Key)
	got := all[1]
	want := batch.Records[0]
	assert.Equal(t, want.DisplayName, got.DisplayName)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.True(t, want.ObservedAt.Equal(got.ObservedAt))
}

func TestReconcile_ObservedAtNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "mono.db"))

	newer := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	_, err := s.Reconcile(ctx, model.Batch{ObservedAt: newer, Records: []model.Record{rec("chad", "10", newer)}})
	require.NoError(t, err)

	stats, err := s.Reconcile(ctx, model.Batch{ObservedAt: older, Records: []model.Record{
		rec("chad", "5", older),
		rec("mali", "7", older),
	}})
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileStats{Inserted: 1, Stale: 1, Total: 2}, stats)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "10", all[0].Metrics.TotalCases)
	assert.True(t, newer.Equal(all[0].ObservedAt))
}

func TestReconcile_CancelledContextAppliesNothing(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cancel.db"))
	require.NoError(t, s.EnsureSchema(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	at := time.Now()
	_, err := s.Reconcile(ctx, model.Batch{ObservedAt: at, Records: []model.Record{rec("peru", "1", at)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStore)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
}

func TestBind_NumberedPlaceholders(t *testing.T) {
	pg := &sqlStore{dialect: dialect{numbered: true}}
	assert.Equal(t, "VALUES ($1, $2, $3)", pg.bind("VALUES (?, ?, ?)"))

	lite := &sqlStore{dialect: dialect{}}
	assert.Equal(t, "VALUES (?, ?)", lite.bind("VALUES (?, ?)"))
}
