// Package investigate explains flagged buckets by listing the critical events
// that fell inside them.
package investigate

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/model"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// Finding is one critical event inside a flagged bucket.
type Finding struct {
	AnomalyTimeWindow time.Time
	AnomalyScore      float64
	Event             parsers.Event
}

// Investigator matches flagged buckets back to raw events.
type Investigator struct {
	width    time.Duration
	critical map[parsers.EventType]struct{}
}

// New builds an Investigator for buckets of width, keeping only events whose
// type is in criticalTypes.
func New(width time.Duration, criticalTypes []string) *Investigator {
	crit := make(map[parsers.EventType]struct{}, len(criticalTypes))
	for _, t := range criticalTypes {
		crit[parsers.EventType(strings.ToUpper(strings.TrimSpace(t)))] = struct{}{}
	}
	return &Investigator{width: width, critical: crit}
}

// Investigate returns findings for every flagged record, ordered by score
// (most anomalous first) and then by event time. Buckets without critical
// events contribute nothing.
func (inv *Investigator) Investigate(records []model.Record, events []parsers.Event) []Finding {
	sorted := make([]parsers.Event, 0, len(events))
	for i := range events {
		if _, ok := inv.critical[events[i].EventType]; ok {
			sorted = append(sorted, events[i])
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var out []Finding
	for _, r := range records {
		if !r.IsAnomaly {
			continue
		}
		end := r.BucketStart.Add(inv.width)
		i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Timestamp.Before(r.BucketStart) })
		for ; i < len(sorted) && sorted[i].Timestamp.Before(end); i++ {
			out = append(out, Finding{AnomalyTimeWindow: r.BucketStart, AnomalyScore: r.Score, Event: sorted[i]})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AnomalyScore != out[j].AnomalyScore {
			return out[i].AnomalyScore < out[j].AnomalyScore
		}
		return out[i].Event.Timestamp.Before(out[j].Event.Timestamp)
	})
	return out
}

// SessionCount is how often a pid/user pair appears among findings.
type SessionCount struct {
	PID   int              `json:"pid"`
	User  parsers.Identity `json:"user"`
	Count int              `json:"count"`
}

// TopSessions returns the n most frequent pid/user pairs in findings.
func TopSessions(findings []Finding, n int) []SessionCount {
	type key struct {
		pid  int
		user parsers.Identity
	}
	counts := map[key]int{}
	for _, f := range findings {
		counts[key{f.Event.PID, f.Event.User}]++
	}
	out := make([]SessionCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, SessionCount{PID: k.pid, User: k.user, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].PID != out[j].PID {
			return out[i].PID < out[j].PID
		}
		return out[i].User < out[j].User
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// WriteCSV writes findings with the window and score ahead of the event fields.
func WriteCSV(w io.Writer, findings []Finding) error {
	cw := csv.NewWriter(w)
	header := append([]string{"Anomaly_Time_Window", "Anomaly_Score"}, parsers.CSVHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range findings {
		f := &findings[i]
		rec := append([]string{
			f.AnomalyTimeWindow.Format(parsers.TimestampLayout),
			strconv.FormatFloat(f.AnomalyScore, 'f', 6, 64),
		}, parsers.EventCSVRow(&f.Event)...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
