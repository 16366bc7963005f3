package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.trai.ch/zerr"

	"github.com/backyonatan-alt/casecount/internal/config"
	"github.com/backyonatan-alt/casecount/internal/model"
)

// maxBodyBytes caps how much of the source page is read.
const maxBodyBytes = 16 << 20

// Fetcher retrieves the raw statistics page over HTTP.
type Fetcher struct {
	client    *http.Client
	url       string
	userAgent string
}

func New(cfg config.SourceConfig) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
	}
}

// Fetch returns the page body. Network failures and non-2xx responses are
// reported as model.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	slog.Info("fetcher: fetching source", "url", f.url)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, errors.Join(model.ErrFetch, zerr.Wrap(err, "create request"))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Join(model.ErrFetch, zerr.With(zerr.Wrap(err, "source request"), "url", f.url))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.Join(model.ErrFetch,
			zerr.With(zerr.New(fmt.Sprintf("source returned status %d", resp.StatusCode)), "url", f.url))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Join(model.ErrFetch, zerr.Wrap(err, "read body"))
	}

	slog.Info("fetcher: source fetched", "bytes", len(body), "took", time.Since(start))
	return body, nil
}
