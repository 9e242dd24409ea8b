// Package features turns parsed events into fixed-width time-bucket feature
// vectors.
package features

import (
	"math/big"
	"sort"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// Statistic columns that follow the per-event-type counts in every schema.
const (
	ColAvgSessionDuration = "avg_session_duration"
	ColMaxSessionDuration = "max_session_duration"
	ColTotalSessionTime   = "total_session_time"
	ColRatioFatalToTotal  = "ratio_fatal_to_total"

	ratioEpsilon = 1e-6

	// MaxFillBuckets caps gap filling. A span needing more buckets than
	// this is emitted without zero buckets.
	MaxFillBuckets = 100_000
)

// StatColumns lists the statistic columns in schema order.
var StatColumns = []string{ColAvgSessionDuration, ColMaxSessionDuration, ColTotalSessionTime, ColRatioFatalToTotal}

// Schema is an ordered list of feature column names. The training schema is
// persisted with the scaler and model and is the single source of truth at
// scoring time.
type Schema []string

// SchemaFromEvents builds the schema for a training set: one sorted
// count_<type> column per observed event type followed by StatColumns.
func SchemaFromEvents(events []parsers.Event) Schema {
	seen := map[string]struct{}{}
	for i := range events {
		seen[events[i].EventType.ColumnName()] = struct{}{}
	}
	cols := make([]string, 0, len(seen)+len(StatColumns))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return append(Schema(cols), StatColumns...)
}

// Index returns the position of col, or -1.
func (s Schema) Index(col string) int {
	for i, c := range s {
		if c == col {
			return i
		}
	}
	return -1
}

// Vector is the feature profile of one bucket.
type Vector struct {
	BucketStart        time.Time
	Counts             map[parsers.EventType]int
	Total              int
	AvgSessionDuration float64
	MaxSessionDuration float64
	TotalSessionTime   float64
	RatioFatalToTotal  float64
}

// Row reconciles v against schema: event types the schema does not know are
// ignored and schema columns v never saw are zero.
func (v Vector) Row(schema Schema) []float64 {
	byCol := make(map[string]float64, len(v.Counts))
	for typ, n := range v.Counts {
		byCol[typ.ColumnName()] += float64(n)
	}
	byCol[ColAvgSessionDuration] = v.AvgSessionDuration
	byCol[ColMaxSessionDuration] = v.MaxSessionDuration
	byCol[ColTotalSessionTime] = v.TotalSessionTime
	byCol[ColRatioFatalToTotal] = v.RatioFatalToTotal

	row := make([]float64, len(schema))
	for i, col := range schema {
		row[i] = byCol[col]
	}
	return row
}

// Matrix reconciles every vector against schema.
func Matrix(schema Schema, vectors []Vector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i := range vectors {
		rows[i] = vectors[i].Row(schema)
	}
	return rows
}

// Aggregator groups events into epoch-aligned buckets of Width.
type Aggregator struct {
	Width time.Duration
	// FillGaps emits zero-valued buckets for empty intervals inside the
	// observed span. Training uses it; realtime does not.
	FillGaps bool
}

// BucketStart floors t to its bucket, keeping t's location for display.
// It is exact for any representable time, not only the UnixNano range.
func (a Aggregator) BucketStart(t time.Time) time.Time {
	sec, nsec := t.Unix(), int64(t.Nanosecond())
	w := int64(a.Width)
	if w%int64(time.Second) == 0 {
		ws := w / int64(time.Second)
		r := sec % ws
		if r < 0 {
			r += ws
		}
		return time.Unix(sec-r, 0).In(t.Location())
	}

	// sub-second or fractional widths: floor in big arithmetic
	total := new(big.Int).Mul(big.NewInt(sec), big.NewInt(int64(time.Second)))
	total.Add(total, big.NewInt(nsec))
	width := big.NewInt(w)
	total.Sub(total, new(big.Int).Mod(total, width))
	s, ns := new(big.Int).DivMod(total, big.NewInt(int64(time.Second)), new(big.Int))
	return time.Unix(s.Int64(), ns.Int64()).In(t.Location())
}

// bucketKey identifies a bucket start without going through UnixNano.
type bucketKey struct {
	sec  int64
	nsec int
}

func keyOf(t time.Time) bucketKey { return bucketKey{t.Unix(), t.Nanosecond()} }

// Aggregate buckets events and returns vectors in ascending time order.
// No events yields no vectors.
func (a Aggregator) Aggregate(events []parsers.Event) []Vector {
	if len(events) == 0 || a.Width <= 0 {
		return nil
	}

	groups := map[bucketKey][]parsers.Event{}
	starts := map[bucketKey]time.Time{}
	for i := range events {
		start := a.BucketStart(events[i].Timestamp)
		k := keyOf(start)
		if _, ok := starts[k]; !ok {
			starts[k] = start
		}
		groups[k] = append(groups[k], events[i])
	}

	keys := make([]bucketKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sec != keys[j].sec {
			return keys[i].sec < keys[j].sec
		}
		return keys[i].nsec < keys[j].nsec
	})

	first, last := starts[keys[0]], starts[keys[len(keys)-1]]
	n, ok := a.spanBuckets(first, last)
	if a.FillGaps && !ok {
		logger.L().Warnw("bucket span too wide to fill gaps; emitting observed buckets only",
			"first", first, "last", last, "max_buckets", MaxFillBuckets)
	}
	if !a.FillGaps || !ok {
		out := make([]Vector, 0, len(keys))
		for _, k := range keys {
			out = append(out, AggregateSingle(groups[k], starts[k]))
		}
		return out
	}

	loc := first.Location()
	out := make([]Vector, 0, n)
	for i := int64(0); i < n; i++ {
		start := first.Add(time.Duration(i) * a.Width)
		k := keyOf(start)
		if s, ok := starts[k]; ok {
			start = s
		} else {
			start = start.In(loc)
		}
		out = append(out, AggregateSingle(groups[k], start))
	}
	return out
}

// spanBuckets returns how many buckets cover [first, last] and whether
// that count is within MaxFillBuckets.
func (a Aggregator) spanBuckets(first, last time.Time) (int64, bool) {
	limit := time.Duration(MaxFillBuckets-1) * a.Width
	if limit/a.Width != MaxFillBuckets-1 {
		// width so large that any observed span fits
		limit = 1<<63 - 1
	}
	span := last.Sub(first)
	// Sub saturates, so a span beyond the Duration range is never <= limit
	if span < 0 || span > limit || last.After(first.Add(limit)) {
		return 0, false
	}
	return int64(span/a.Width) + 1, true
}

// AggregateSingle builds one vector from events regardless of their
// timestamps. Realtime uses it to summarize a poll interval.
func AggregateSingle(events []parsers.Event, start time.Time) Vector {
	v := Vector{BucketStart: start, Counts: map[parsers.EventType]int{}}
	var disconnects int
	for i := range events {
		e := &events[i]
		v.Counts[e.EventType]++
		v.Total++
		if e.EventType == parsers.EventDisconnect {
			disconnects++
			v.TotalSessionTime += e.SessionDurationSec
			if disconnects == 1 || e.SessionDurationSec > v.MaxSessionDuration {
				v.MaxSessionDuration = e.SessionDurationSec
			}
		}
	}
	if disconnects > 0 {
		v.AvgSessionDuration = v.TotalSessionTime / float64(disconnects)
	}
	if v.Total > 0 {
		v.RatioFatalToTotal = clamp01(float64(v.Counts[parsers.EventFatal]) / (float64(v.Total) + ratioEpsilon))
	}
	return v
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
