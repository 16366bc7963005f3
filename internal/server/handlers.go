package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/backyonatan-alt/casecount/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("server: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParam(r *http.Request) string {
	q := chi.URLParam(r, "query")
	if unescaped, err := url.PathUnescape(q); err == nil {
		return unescaped
	}
	return q
}

func artifactURL(key string) string {
	return "/api/records/" + url.PathEscape(key) + "/artifact"
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records := s.lookup.Records()
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup.Resolve(r.Context(), queryParam(r))
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no record matches "+strconv.Quote(queryParam(r)))
		return
	}
	if err != nil {
		slog.Error("server: resolve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleArtifact serves the rendered artifact. When none can be produced the
// text summary is returned instead, so clients always have something to show.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	query := queryParam(r)
	rec, err := s.lookup.Resolve(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusNotFound, "no record matches "+strconv.Quote(query))
		return
	}

	ref, ok := s.lookup.Artifact(r.Context(), query)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "artifact unavailable",
			"text":  rec.Summary(),
		})
		return
	}

	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, ref.Path)
}

type answerResponse struct {
	Record      model.Record `json:"record"`
	Text        string       `json:"text"`
	ArtifactURL string       `json:"artifact_url,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	query := queryParam(r)
	ans, err := s.lookup.Answer(r.Context(), query)
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no record matches "+strconv.Quote(query))
		return
	}
	if err != nil {
		slog.Error("server: answer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := answerResponse{Record: ans.Record, Text: ans.Text}
	if ans.Artifact != nil {
		resp.ArtifactURL = artifactURL(ans.Record.Key)
	}
	writeJSON(w, http.StatusOK, resp)
}

type reportResponse struct {
	Cycle            uint64               `json:"cycle"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	OK               bool                 `json:"ok"`
	Phase            model.Phase          `json:"phase"`
	Error            string               `json:"error,omitempty"`
	Rows             int                  `json:"rows"`
	Accepted         int                  `json:"accepted"`
	Skipped          map[string]int       `json:"skipped,omitempty"`
	Stats            model.ReconcileStats `json:"stats"`
	ArtifactsDropped int                  `json:"artifacts_dropped"`
}

func newReportResponse(rep model.CycleReport) reportResponse {
	out := reportResponse{
		Cycle:            rep.Cycle,
		StartedAt:        rep.StartedAt,
		FinishedAt:       rep.FinishedAt,
		OK:               rep.OK(),
		Phase:            rep.Phase,
		Rows:             rep.Rows,
		Accepted:         rep.Accepted,
		Skipped:          rep.Skipped,
		Stats:            rep.Stats,
		ArtifactsDropped: rep.ArtifactsDropped,
	}
	if rep.Err != nil {
		out.Error = rep.Err.Error()
	}
	return out
}

// handleRefresh runs one cycle now. The cycle is detached from the request
// so a disconnecting client does not abandon it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rep, err := s.refresher.Run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, model.ErrCycleInProgress):
		writeError(w, http.StatusConflict, "a refresh cycle is already running")
	case err != nil:
		writeJSON(w, http.StatusBadGateway, newReportResponse(rep))
	default:
		writeJSON(w, http.StatusOK, newReportResponse(rep))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"records": s.lookup.Len(),
		"phase":   s.refresher.Phase(),
	}
	if rep, ok := s.refresher.LastReport(); ok {
		resp["last_cycle"] = newReportResponse(rep)
		if !rep.OK() {
			resp["status"] = "degraded"
		}
	}
	if s.cache != nil {
		resp["artifact_cache"] = s.cache.Stats()
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, resp)
}
