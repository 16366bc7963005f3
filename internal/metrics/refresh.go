package metrics

import (
	"sync/atomic"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// Refresh tracks refresh-cycle outcomes.
type Refresh struct {
	cycles      *CounterVec
	rowsSkipped *Counter
	lastSuccess atomic.Int64
}

// NewRefresh registers the refresh families on reg.
func NewRefresh(reg *Registry) *Refresh {
	r := &Refresh{
		cycles:      reg.NewCounterVec("casecount_refresh_cycles_total", "Refresh cycles by result.", "result"),
		rowsSkipped: reg.NewCounter("casecount_rows_skipped_total", "Source rows rejected by the parser."),
	}
	reg.GaugeFunc("casecount_last_refresh_timestamp_seconds", "Unix time of the last successful refresh.",
		func() float64 { return float64(r.lastSuccess.Load()) })
	return r
}

// Observe records one cycle report. It is meant to be passed to
// pipeline.Subscribe.
func (r *Refresh) Observe(report model.CycleReport) {
	for _, n := range report.Skipped {
		r.rowsSkipped.Add(uint64(n))
	}
	if !report.OK() {
		r.cycles.With(string(report.Phase)).Inc()
		return
	}
	r.cycles.With("success").Inc()
	r.lastSuccess.Store(report.FinishedAt.Unix())
}
