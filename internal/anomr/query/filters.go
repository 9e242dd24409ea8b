package query

import (
	"strings"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// FilterByUser matches events whose user equals user, ignoring case.
// Events with an unknown user never match.
func FilterByUser(user string) EventFilter {
	return func(e *parsers.Event) bool {
		return e.User.Known() && strings.EqualFold(e.User.String(), user)
	}
}

// FilterByDatabase matches events whose database equals db, ignoring case.
func FilterByDatabase(db string) EventFilter {
	return func(e *parsers.Event) bool {
		return e.Database.Known() && strings.EqualFold(e.Database.String(), db)
	}
}

// FilterByPID matches events from any of the given backend pids.
func FilterByPID(pids []int) EventFilter {
	set := make(map[int]struct{}, len(pids))
	for _, p := range pids {
		set[p] = struct{}{}
	}
	return func(e *parsers.Event) bool {
		_, ok := set[e.PID]
		return ok
	}
}

// FilterByType matches events whose type is one of types. A pattern ending
// in * matches by prefix, so AUDIT_* selects every audited command.
//
// Examples:
//   - FilterByType([]string{"FATAL"}) matches failed logins
//   - FilterByType([]string{"connect_*"}) matches CONNECT_RECEIVED and CONNECT_AUTHORIZED
func FilterByType(types []string) EventFilter {
	var exact []string
	var prefixes []string
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if p, ok := strings.CutSuffix(t, "*"); ok {
			prefixes = append(prefixes, p)
			continue
		}
		exact = append(exact, t)
	}
	return func(e *parsers.Event) bool {
		et := string(e.EventType)
		for _, t := range exact {
			if et == t {
				return true
			}
		}
		for _, p := range prefixes {
			if strings.HasPrefix(et, p) {
				return true
			}
		}
		return false
	}
}

// FilterByWindow matches events in [since, until). A zero bound is open.
func FilterByWindow(since, until time.Time) EventFilter {
	return func(e *parsers.Event) bool {
		if !since.IsZero() && e.Timestamp.Before(since) {
			return false
		}
		if !until.IsZero() && !e.Timestamp.Before(until) {
			return false
		}
		return true
	}
}

// FilterByLast matches events no older than last, measured back from now.
func FilterByLast(now time.Time, last time.Duration) EventFilter {
	cutoff := now.Add(-last)
	return func(e *parsers.Event) bool {
		return !e.Timestamp.Before(cutoff)
	}
}

// FilterExcludeAudit drops audited statements, leaving connection and
// error traffic.
func FilterExcludeAudit() EventFilter {
	return func(e *parsers.Event) bool {
		return !e.EventType.IsAudit()
	}
}

// matchAll applies all filters using AND logic. No filters match everything.
func matchAll(e *parsers.Event, filters []EventFilter) bool {
	for _, f := range filters {
		if !f(e) {
			return false
		}
	}
	return true
}

// BuildFilters translates options into a filter chain. Only non-empty
// options produce a filter.
func BuildFilters(opts Options, now time.Time) []EventFilter {
	var filters []EventFilter
	if opts.User != "" {
		filters = append(filters, FilterByUser(opts.User))
	}
	if opts.Database != "" {
		filters = append(filters, FilterByDatabase(opts.Database))
	}
	if len(opts.PIDs) > 0 {
		filters = append(filters, FilterByPID(opts.PIDs))
	}
	if len(opts.Types) > 0 {
		filters = append(filters, FilterByType(opts.Types))
	}
	if opts.Last > 0 {
		filters = append(filters, FilterByLast(now, opts.Last))
	} else if !opts.Since.IsZero() || !opts.Until.IsZero() {
		filters = append(filters, FilterByWindow(opts.Since, opts.Until))
	}
	if opts.ExcludeAudit {
		filters = append(filters, FilterExcludeAudit())
	}
	return filters
}
