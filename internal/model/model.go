package model

import (
	"fmt"
	"strings"
	"time"
)

// Metrics holds the per-country statistics exactly as they appeared in the
// source table. Values are never coerced: the source mixes digits, thousands
// separators, signs and sentinel text such as "N/A".
type Metrics struct {
	TotalCases     string `json:"total_cases"`
	NewCases       string `json:"new_cases"`
	TotalDeaths    string `json:"total_deaths"`
	NewDeaths      string `json:"new_deaths"`
	TotalRecovered string `json:"total_recovered"`
}

// Record is one country's current statistics snapshot.
type Record struct {
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	Metrics     Metrics   `json:"metrics"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Summary renders the plain-text reply used whenever no artifact is available.
func (r Record) Summary() string {
	var b strings.Builder
	b.WriteString(r.DisplayName)
	fmt.Fprintf(&b, "\nTotal Case: %s", orDash(r.Metrics.TotalCases))
	fmt.Fprintf(&b, "\nTotal Death: %s", orDash(r.Metrics.TotalDeaths))
	fmt.Fprintf(&b, "\nTotal Recovery: %s", orDash(r.Metrics.TotalRecovered))
	fmt.Fprintf(&b, "\nUpdate Date: %s", r.ObservedAt.UTC().Format(time.DateTime))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Batch is the set of records produced by one scrape. It is reconciled
// into the store as a unit.
type Batch struct {
	ObservedAt time.Time
	Records    []Record
}

// ReconcileStats summarizes one Reconcile call.
type ReconcileStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	// Stale counts rows left untouched because the stored value was
	// observed later than the batch.
	Stale int `json:"stale"`
	Total int `json:"total"`
}

// ArtifactRef points at a rendered image for one record.
type ArtifactRef struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Cycle       uint64 `json:"cycle"`
}

// NormalizeKey maps a display name or query to the key format used by
// records: trimmed, lower-cased, inner whitespace collapsed to one space.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
