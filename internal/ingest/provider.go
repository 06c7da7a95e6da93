// Package ingest holds what history importers have in common.
package ingest

import "errors"

// ErrInvalidExport marks an export the parser rejected. Other import errors
// come from the backend and may succeed on retry.
var ErrInvalidExport = errors.New("invalid export")

// Result holds the outcome of an import.
type Result struct {
	SessionsReceived int `json:"sessions_received"`
	WorkoutsInserted int `json:"workouts_inserted"`
	WorkoutsSkipped  int `json:"workouts_skipped"`
	SetsReceived     int `json:"sets_received"`
	SetsInserted     int `json:"sets_inserted"`

	Message string `json:"message,omitempty"`
}
