package query

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// Stats tracks what a query run read and matched.
type Stats struct {
	InputEvents    int            // Valid events read
	MatchedEvents  int            // Events that passed all filters
	ErrorEvents    int            // Lines that did not decode
	ByType         map[string]int // Matched events by event type
	ByUser         map[string]int // Matched events by user
	FirstTimestamp *time.Time     // Earliest matched event
	LastTimestamp  *time.Time     // Latest matched event
}

func NewStats() *Stats {
	return &Stats{
		ByType: make(map[string]int),
		ByUser: make(map[string]int),
	}
}

// IncrementMatched counts e and widens the matched time range.
func (s *Stats) IncrementMatched(e *parsers.Event) {
	s.MatchedEvents++
	s.ByType[string(e.EventType)]++
	s.ByUser[e.User.String()]++

	ts := e.Timestamp
	if s.FirstTimestamp == nil || ts.Before(*s.FirstTimestamp) {
		s.FirstTimestamp = &ts
	}
	if s.LastTimestamp == nil || ts.After(*s.LastTimestamp) {
		s.LastTimestamp = &ts
	}
}

// PrintSummary writes a human-readable summary. Breakdowns are sorted by
// count descending, then by name.
func (s *Stats) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Total events processed: %d\n", s.InputEvents)
	if s.ErrorEvents > 0 {
		fmt.Fprintf(w, "  Undecodable lines: %d\n", s.ErrorEvents)
	}
	if s.FirstTimestamp != nil && s.LastTimestamp != nil {
		fmt.Fprintf(w, "  Time range: %s to %s\n",
			s.FirstTimestamp.Format(parsers.TimestampLayout),
			s.LastTimestamp.Format(parsers.TimestampLayout))
	}
	fmt.Fprintf(w, "  Matched: %d\n", s.MatchedEvents)

	if len(s.ByType) > 0 {
		fmt.Fprintf(w, "\n  By event type:\n")
		printSortedMap(w, s.ByType, "    ")
	}
	if len(s.ByUser) > 0 {
		fmt.Fprintf(w, "\n  By user:\n")
		printSortedMap(w, s.ByUser, "    ")
	}
}

func printSortedMap(w io.Writer, m map[string]int, indent string) {
	type kv struct {
		key   string
		value int
	}
	pairs := make([]kv, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].value == pairs[j].value {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value > pairs[j].value
	})
	for _, p := range pairs {
		fmt.Fprintf(w, "%s%s: %d\n", indent, p.key, p.value)
	}
}
