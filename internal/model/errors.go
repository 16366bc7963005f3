package model

import "go.trai.ch/zerr"

var (
	// ErrNotFound is returned when a query does not match any record. It is an
	// expected outcome, not a fault.
	ErrNotFound = zerr.New("record not found")

	// ErrFetch is returned when the source page cannot be retrieved.
	ErrFetch = zerr.New("source fetch failed")

	// ErrNoRecords is returned when a fetched page yields no acceptable rows.
	ErrNoRecords = zerr.New("source yielded no records")

	// ErrStore is returned when schema creation or a reconcile transaction fails.
	ErrStore = zerr.New("record store failure")

	// ErrRender is returned when the external renderer fails or times out.
	ErrRender = zerr.New("artifact render failed")

	// ErrRendererDisabled is returned when no render endpoint is configured.
	ErrRendererDisabled = zerr.New("renderer disabled")

	// ErrCycleInProgress is returned when a refresh is requested while one is running.
	ErrCycleInProgress = zerr.New("refresh cycle already in progress")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = zerr.New("invalid configuration")
)
