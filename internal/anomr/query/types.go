package query

import (
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// Options contains the CLI flags for the query command.
// It is populated from Cobra flags and passed to Run.
type Options struct {
	// Event filters. Empty values do not filter.
	User     string   // Database user, case-insensitive
	Database string   // Database name, case-insensitive
	PIDs     []int    // Backend process ids
	Types    []string // Event types; a trailing * matches a prefix (AUDIT_*)

	// Time filters. Until is exclusive. Last takes precedence over Since.
	Since time.Time
	Until time.Time
	Last  time.Duration

	ExcludeAudit bool // Drop AUDIT_* events
	Summary      bool // Count matches without writing them
	Limit        int  // Stop after this many matches (0 = no limit)
}

// EventFilter reports whether an event matches one criterion.
// Filters are combined using AND logic.
type EventFilter func(*parsers.Event) bool
