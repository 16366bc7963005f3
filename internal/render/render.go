// Package render calls the external artifact renderer and stores its output.
//
// The renderer is an opaque HTTP service: it receives a record as JSON and
// answers with image bytes. Artifacts are written under a directory with a
// content-hash file name, so identical renders share one file.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"

	"github.com/backyonatan-alt/casecount/internal/config"
	"github.com/backyonatan-alt/casecount/internal/model"
)

const maxArtifactBytes = 8 << 20

type request struct {
	Key         string        `json:"key"`
	DisplayName string        `json:"display_name"`
	Metrics     model.Metrics `json:"metrics"`
	ObservedAt  string        `json:"observed_at"`
}

// Client renders records through the configured endpoint.
type Client struct {
	client   *http.Client
	endpoint string
	dir      string
}

// New returns a Client. Timeouts are applied per call by the caller's
// context, so the HTTP client carries none of its own.
func New(cfg config.RenderConfig) *Client {
	return &Client{
		client:   &http.Client{},
		endpoint: cfg.Endpoint,
		dir:      cfg.ArtifactDir,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.endpoint != "" }

// Render asks the renderer for an image of rec and stores it on disk.
func (c *Client) Render(ctx context.Context, rec model.Record) (model.ArtifactRef, error) {
	if !c.Enabled() {
		return model.ArtifactRef{}, model.ErrRendererDisabled
	}

	payload, err := json.Marshal(request{
		Key:         rec.Key,
		DisplayName: rec.DisplayName,
		Metrics:     rec.Metrics,
		ObservedAt:  rec.ObservedAt.UTC().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return model.ArtifactRef{}, zerr.Wrap(err, "encode render request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.ArtifactRef{}, zerr.Wrap(err, "create render request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.ArtifactRef{}, errors.Join(model.ErrRender, zerr.With(zerr.Wrap(err, "render request"), "key", rec.Key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.ArtifactRef{}, errors.Join(model.ErrRender,
			zerr.With(zerr.New(fmt.Sprintf("renderer returned status %d", resp.StatusCode)), "key", rec.Key))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return model.ArtifactRef{}, errors.Join(model.ErrRender, zerr.Wrap(err, "read artifact"))
	}
	if len(body) == 0 {
		return model.ArtifactRef{}, errors.Join(model.ErrRender, zerr.With(zerr.New("renderer returned empty body"), "key", rec.Key))
	}
	if len(body) > maxArtifactBytes {
		return model.ArtifactRef{}, errors.Join(model.ErrRender, zerr.With(zerr.New("artifact too large"), "key", rec.Key))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	path, err := c.write(body, contentType)
	if err != nil {
		return model.ArtifactRef{}, errors.Join(model.ErrRender, err)
	}

	slog.Info("render: artifact stored", "key", rec.Key, "path", path, "bytes", len(body))
	return model.ArtifactRef{Path: path, ContentType: contentType, Size: int64(len(body))}, nil
}

// write stores body under its content hash via a temp file and rename.
func (c *Client) write(body []byte, contentType string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", zerr.With(zerr.Wrap(err, "create artifact directory"), "dir", c.dir)
	}

	name := fmt.Sprintf("%016x%s", xxhash.Sum64(body), extension(contentType))
	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err == nil {
		// Reused files count as rendered now so Prune keeps them.
		now := time.Now()
		if err := os.Chtimes(path, now, now); err != nil {
			return "", zerr.With(zerr.Wrap(err, "touch artifact"), "path", path)
		}
		return path, nil
	}

	tmp, err := os.CreateTemp(c.dir, ".render-*")
	if err != nil {
		return "", zerr.Wrap(err, "create temp artifact")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", zerr.Wrap(err, "write artifact")
	}
	if err := tmp.Close(); err != nil {
		return "", zerr.Wrap(err, "close artifact")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", zerr.With(zerr.Wrap(err, "rename artifact"), "path", path)
	}
	return path, nil
}

// Prune removes artifacts last written before cutoff and returns how many
// were removed. In-progress temp files are left alone.
func (c *Client) Prune(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "read artifact directory"), "dir", c.dir)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".render-") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// PruneAfter returns a cycle observer that keeps the artifact directory
// bounded. After each successful cycle it removes files written before the
// previous successful cycle finished. Every artifact the cache can still
// reference was rendered for the current cycle, which only began after that.
func (c *Client) PruneAfter() func(model.CycleReport) {
	var prev time.Time
	return func(report model.CycleReport) {
		if !report.OK() {
			return
		}
		cutoff := prev
		prev = report.FinishedAt
		if cutoff.IsZero() {
			return
		}
		n, err := c.Prune(cutoff)
		if err != nil {
			slog.Warn("render: prune artifacts", "dir", c.dir, "error", err)
		}
		if n > 0 {
			slog.Info("render: pruned artifacts", "dir", c.dir, "removed", n)
		}
	}
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
