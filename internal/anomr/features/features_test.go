package features

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

var plus7 = time.FixedZone("", 7*3600)

func at(h, m, s int) time.Time {
	return time.Date(2025, 10, 4, h, m, s, 0, plus7)
}

func ev(ts time.Time, typ parsers.EventType) parsers.Event {
	return parsers.Event{Timestamp: ts, EventType: typ, User: parsers.UnknownIdentity, Database: parsers.UnknownIdentity}
}

func disconnect(ts time.Time, sec float64) parsers.Event {
	e := ev(ts, parsers.EventDisconnect)
	e.SessionDurationSec = sec
	return e
}

func TestAggregator_BucketStart(t *testing.T) {
	a := Aggregator{Width: 5 * time.Minute}
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{at(20, 59, 26), at(20, 55, 0)},
		{at(21, 0, 0), at(21, 0, 0)},
		{at(21, 4, 59), at(21, 0, 0)},
		{time.Date(2025, 10, 4, 21, 4, 59, 999_999_999, plus7), at(21, 0, 0)},
	}
	for _, tt := range tests {
		got := a.BucketStart(tt.in)
		assert.True(t, tt.want.Equal(got), "in %s: got %s want %s", tt.in, got, tt.want)
	}

	// Epoch alignment holds for widths that do not divide an hour.
	b := Aggregator{Width: 7 * time.Minute}
	got := b.BucketStart(time.Unix(7*60*1000+30, 0))
	assert.Equal(t, int64(7*60*1000), got.Unix())
}

func TestAggregate_FatalRatio(t *testing.T) {
	var events []parsers.Event
	for i := 0; i < 100; i++ {
		events = append(events, ev(at(21, 0, i%60), parsers.EventLog))
	}
	events = append(events, ev(at(21, 1, 0), parsers.EventFatal))

	vecs := Aggregator{Width: 5 * time.Minute, FillGaps: true}.Aggregate(events)
	require.Len(t, vecs, 1)
	assert.Equal(t, 101, vecs[0].Total)
	assert.Equal(t, 100, vecs[0].Counts[parsers.EventLog])
	assert.InDelta(t, 1.0/101.0, vecs[0].RatioFatalToTotal, 1e-6)
}

func TestAggregate_SessionStats(t *testing.T) {
	events := []parsers.Event{
		disconnect(at(21, 0, 1), 2),
		disconnect(at(21, 0, 2), 6),
		disconnect(at(21, 0, 3), 1),
		ev(at(21, 0, 4), parsers.EventConnectAuthorized),
	}
	events[3].SessionDurationSec = 100 // only disconnects carry durations

	vecs := Aggregator{Width: 5 * time.Minute}.Aggregate(events)
	require.Len(t, vecs, 1)
	v := vecs[0]
	assert.InDelta(t, 3.0, v.AvgSessionDuration, 1e-9)
	assert.InDelta(t, 6.0, v.MaxSessionDuration, 1e-9)
	assert.InDelta(t, 9.0, v.TotalSessionTime, 1e-9)
	assert.Zero(t, v.RatioFatalToTotal)
}

func TestAggregate_FillGaps(t *testing.T) {
	events := []parsers.Event{
		ev(at(21, 0, 0), parsers.EventLog),
		ev(at(21, 16, 0), parsers.EventFatal),
	}

	filled := Aggregator{Width: 5 * time.Minute, FillGaps: true}.Aggregate(events)
	require.Len(t, filled, 4)
	for i, v := range filled {
		assert.True(t, at(21, 5*i, 0).Equal(v.BucketStart), "bucket %d", i)
	}
	assert.Zero(t, filled[1].Total)
	assert.Zero(t, filled[2].RatioFatalToTotal)
	assert.Equal(t, make([]float64, 6), filled[1].Row(SchemaFromEvents(events)))

	sparse := Aggregator{Width: 5 * time.Minute}.Aggregate(events)
	require.Len(t, sparse, 2)
	assert.True(t, at(21, 15, 0).Equal(sparse[1].BucketStart))
}

func TestAggregator_BucketStart_OutsideUnixNanoRange(t *testing.T) {
	a := Aggregator{Width: 5 * time.Minute}
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2300, 1, 1, 0, 2, 0, 0, plus7), time.Date(2300, 1, 1, 0, 0, 0, 0, plus7)},
		{time.Date(1500, 6, 1, 12, 9, 59, 0, time.UTC), time.Date(1500, 6, 1, 12, 5, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := a.BucketStart(tt.in)
		assert.True(t, tt.want.Equal(got), "in %s: got %s want %s", tt.in, got, tt.want)
	}

	sub := Aggregator{Width: 1500 * time.Millisecond}
	got := sub.BucketStart(time.Unix(10, 0))
	assert.True(t, time.Unix(9, 0).Equal(got), "got %s", got)
	got = sub.BucketStart(time.Unix(-1, 0))
	assert.True(t, time.Unix(-2, 500_000_000).Equal(got), "got %s", got)
}

func TestAggregate_WideSpanDoesNotFillGaps(t *testing.T) {
	far := time.Date(2300, 1, 1, 0, 0, 0, 0, plus7)
	events := []parsers.Event{
		ev(at(21, 0, 0), parsers.EventLog),
		ev(far, parsers.EventFatal),
	}

	var vecs []Vector
	require.NotPanics(t, func() {
		vecs = Aggregator{Width: 5 * time.Minute, FillGaps: true}.Aggregate(events)
	})
	require.Len(t, vecs, 2)
	assert.True(t, at(21, 0, 0).Equal(vecs[0].BucketStart))
	assert.True(t, far.Equal(vecs[1].BucketStart))

	// just over the cap: observed buckets only
	edge := at(21, 0, 0).Add(time.Duration(MaxFillBuckets) * 5 * time.Minute)
	vecs = Aggregator{Width: 5 * time.Minute, FillGaps: true}.Aggregate([]parsers.Event{
		ev(at(21, 0, 0), parsers.EventLog),
		ev(edge, parsers.EventLog),
	})
	assert.Len(t, vecs, 2)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregator{Width: time.Minute, FillGaps: true}.Aggregate(nil))

	v := AggregateSingle(nil, at(21, 0, 0))
	assert.Zero(t, v.Total)
	assert.Zero(t, v.RatioFatalToTotal)
}

func TestAggregate_Deterministic(t *testing.T) {
	events := []parsers.Event{
		ev(at(21, 7, 0), parsers.EventError),
		ev(at(21, 0, 0), parsers.EventLog),
		disconnect(at(21, 3, 0), 4),
	}
	a := Aggregator{Width: 5 * time.Minute, FillGaps: true}
	assert.Equal(t, a.Aggregate(events), a.Aggregate(events))
}

func TestSchemaFromEvents(t *testing.T) {
	events := []parsers.Event{
		ev(at(21, 0, 0), parsers.EventLog),
		ev(at(21, 0, 1), parsers.EventFatal),
		ev(at(21, 0, 2), "AUDIT_SELECT"),
		ev(at(21, 0, 3), parsers.EventLog),
	}
	want := Schema{
		"count_audit_select", "count_fatal", "count_log",
		ColAvgSessionDuration, ColMaxSessionDuration, ColTotalSessionTime, ColRatioFatalToTotal,
	}
	assert.Equal(t, want, SchemaFromEvents(events))
	assert.Equal(t, 1, want.Index("count_fatal"))
	assert.Equal(t, -1, want.Index("count_panic"))
	assert.Equal(t, Schema(StatColumns), SchemaFromEvents(nil))
}

func TestVector_Row_Reconciles(t *testing.T) {
	schema := Schema{"count_fatal", "count_log", ColAvgSessionDuration, ColMaxSessionDuration, ColTotalSessionTime, ColRatioFatalToTotal}
	v := AggregateSingle([]parsers.Event{
		ev(at(21, 0, 0), parsers.EventFatal),
		ev(at(21, 0, 1), "AUDIT_DROP_TABLE"), // unseen at training time
	}, at(21, 0, 0))

	row := v.Row(schema)
	require.Len(t, row, len(schema))
	assert.Equal(t, 1.0, row[0])
	assert.Equal(t, 0.0, row[1])
	assert.InDelta(t, 0.5, row[5], 1e-6)
}

func TestWriteCSV(t *testing.T) {
	events := []parsers.Event{ev(at(21, 0, 0), parsers.EventFatal), disconnect(at(21, 0, 1), 2.5)}
	schema := SchemaFromEvents(events)
	vecs := Aggregator{Width: 5 * time.Minute}.Aggregate(events)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, schema, vecs))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, append([]string{"bucket_start"}, schema...), rows[0])
	assert.Equal(t, "2025-10-04T21:00:00.000+07:00", rows[1][0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "2.5", rows[1][3])
}
