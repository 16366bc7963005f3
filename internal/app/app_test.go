package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyonatan-alt/casecount/internal/config"
)

const sourcePage = `<html><body><table><tbody>
<tr><td>1</td><td>USA</td><td>29,000,000</td><td>+50,000</td><td>530,000</td><td>+1,000</td><td>21,000,000</td><td>+40,000</td></tr>
<tr><td>2</td><td>UK</td><td>4,200,000</td><td></td><td>125,000</td><td></td><td>3,500,000</td><td></td></tr>
<tr><td></td><td>Total:</td><td>120,000,000</td><td></td><td></td><td></td><td></td><td></td></tr>
</tbody></table></body></html>`

func testConfig(t *testing.T, sourceURL string) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "casecount.yaml")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Store = config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "records.db")}
	cfg.Source.URL = sourceURL
	cfg.Render.ArtifactDir = t.TempDir()
	return cfg
}

func TestApp_RefreshThenLookup(t *testing.T) {
	var fetches atomic.Int32
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprint(w, sourcePage)
	}))
	defer src.Close()

	ctx := context.Background()
	cfg := testConfig(t, src.URL)
	cfg.Aliases = map[string]string{"britain": "uk"}

	a, err := New(ctx, cfg)
	require.NoError(t, err)

	report, err := a.Pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Inserted)
	assert.Equal(t, int32(1), fetches.Load())

	for _, q := range []string{"United States", "usa", "Britain", "England"} {
		_, err := a.Lookup.Resolve(ctx, q)
		assert.NoError(t, err, q)
	}

	ans, err := a.Lookup.Answer(ctx, "uk")
	require.NoError(t, err)
	assert.Nil(t, ans.Artifact)
	assert.Contains(t, ans.Text, "Total Case: 4,200,000")
	require.NoError(t, a.Close())

	// A second App over the same store serves the records before any refresh.
	b, err := New(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 2, b.Index.Len())
	assert.Equal(t, uint64(0), b.Index.Cycle())
}

func TestApp_ReloadAliases(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, "http://127.0.0.1:0"))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "britain", a.Resolver.Canonical("Britain"))
	a.ReloadAliases(&config.Config{Aliases: map[string]string{"Britain": "UK"}})
	assert.Equal(t, "uk", a.Resolver.Canonical("britain"))
	assert.Equal(t, "usa", a.Resolver.Canonical("america"))
}

func TestApp_MetricsExposed(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, "http://127.0.0.1:0"))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Pipeline.Run(ctx)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "casecount_records 0")
	assert.Contains(t, body, `casecount_refresh_cycles_total{result="fetching"} 1`)
	assert.Contains(t, body, "casecount_artifact_cache_entries 0")
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sourcePage)
	}))
	defer src.Close()

	cfg := testConfig(t, src.URL)
	cfg.Server.Port = "0"
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, "") }()

	require.Eventually(t, func() bool { return a.Index.Len() == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "key", "usa")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"key":"usa"`)

	buf.Reset()
	NewLogger(config.LogConfig{Level: "debug"}, &buf).Debug("visible")
	assert.Contains(t, buf.String(), "level=DEBUG msg=visible")
}
