package model

import "time"

// Phase is a state of the refresh cycle.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseFetching          Phase = "fetching"
	PhaseParsing           Phase = "parsing"
	PhaseReconciling       Phase = "reconciling"
	PhaseIndexUpdating     Phase = "index_updating"
	PhaseCacheInvalidating Phase = "cache_invalidating"
)

// CycleReport is delivered to subscribers when a refresh cycle ends,
// whether it succeeded or was abandoned.
type CycleReport struct {
	// Cycle is the index cycle produced by this run. Zero when the run
	// was abandoned before the index was updated.
	Cycle      uint64    `json:"cycle"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Phase is the last phase entered. On failure it names the phase
	// that failed.
	Phase Phase `json:"phase"`
	Err   error `json:"-"`

	Rows     int            `json:"rows"`
	Accepted int            `json:"accepted"`
	Skipped  map[string]int `json:"skipped,omitempty"`

	Stats            ReconcileStats `json:"stats"`
	ArtifactsDropped int            `json:"artifacts_dropped"`
}

// OK reports whether the cycle completed.
func (r CycleReport) OK() bool { return r.Err == nil }

// Duration is the wall time the cycle took.
func (r CycleReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Error returns the failure message, or "" on success.
func (r CycleReport) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
