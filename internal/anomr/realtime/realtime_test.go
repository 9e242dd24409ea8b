package realtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/anomr/internal/anomr/features"
	"github.com/vaibhaw-/anomr/internal/anomr/model"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/scaler"
	"github.com/vaibhaw-/anomr/internal/anomr/simulate"
)

var (
	plus7 = time.FixedZone("", 7*3600)
	width = 5 * time.Minute
	t0    = time.Date(2025, 10, 4, 0, 0, 0, 0, plus7)
)

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func appendLines(t *testing.T, path string, lines []string) {
	t.Helper()
	appendFile(t, path, strings.Join(lines, "\n")+"\n")
}

// train fits a scaler and model on simulated normal traffic.
func train(t *testing.T, gen *simulate.Generator, windows int) (*scaler.Params, *model.Forest) {
	t.Helper()
	p := parsers.NewPostgresParser()
	var events []parsers.Event
	for _, l := range gen.Series(t0, width, windows, nil) {
		evt, err := p.ParseLine(context.Background(), l)
		require.NoError(t, err)
		events = append(events, *evt)
	}
	schema := features.SchemaFromEvents(events)
	vecs := features.Aggregator{Width: width, FillGaps: true}.Aggregate(events)
	sc, scaled, err := scaler.Fit(schema, features.Matrix(schema, vecs))
	require.NoError(t, err)
	m, err := model.Fit(schema, scaled, model.Options{NumTrees: 100, SampleSize: 256, Contamination: 0.01, Seed: 42})
	require.NoError(t, err)
	return sc, m
}

func TestCursor_ReadNew_WholeLinesOnly(t *testing.T) {
	log := filepath.Join(t.TempDir(), "postgresql.log")
	appendFile(t, log, "first\nsecond\npart")

	c, err := LoadCursor("", log)
	require.NoError(t, err)

	lines, n, rotated, err := c.ReadNew()
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Equal(t, []string{"first", "second"}, lines)
	assert.Equal(t, int64(len("first\nsecond\n")), n)
	require.NoError(t, c.Advance(n))

	lines, n, _, err = c.ReadNew()
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, n)

	appendFile(t, log, "ial\r\n")
	lines, _, _, err = c.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, lines)
}

func TestCursor_ResetsOnTruncation(t *testing.T) {
	log := filepath.Join(t.TempDir(), "postgresql.log")
	appendFile(t, log, "one\ntwo\nthree\n")

	c, err := LoadCursor("", log)
	require.NoError(t, err)
	_, n, _, err := c.ReadNew()
	require.NoError(t, err)
	require.NoError(t, c.Advance(n))

	require.NoError(t, os.WriteFile(log, []byte("new\n"), 0o644))
	lines, _, rotated, err := c.ReadNew()
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, []string{"new"}, lines)
}

func TestCursor_PersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "postgresql.log")
	cursorFile := filepath.Join(dir, "state", "cursor.json")
	appendFile(t, log, "one\ntwo\n")

	c, err := LoadCursor(cursorFile, log)
	require.NoError(t, err)
	_, n, _, err := c.ReadNew()
	require.NoError(t, err)
	require.NoError(t, c.Advance(n))

	again, err := LoadCursor(cursorFile, log)
	require.NoError(t, err)
	assert.Equal(t, int64(8), again.Offset)

	other, err := LoadCursor(cursorFile, filepath.Join(dir, "other.log"))
	require.NoError(t, err)
	assert.Zero(t, other.Offset)
}

func TestCursor_SkipToEnd(t *testing.T) {
	log := filepath.Join(t.TempDir(), "postgresql.log")
	appendFile(t, log, "old\n")

	c, err := LoadCursor("", log)
	require.NoError(t, err)
	require.NoError(t, c.SkipToEnd())
	assert.Equal(t, int64(4), c.Offset)

	appendFile(t, log, "new\n")
	lines, _, _, err := c.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, lines)

	c.Offset = 2
	require.NoError(t, c.SkipToEnd())
	assert.Equal(t, int64(2), c.Offset)
}

func TestCursor_SkipToEnd_PartialLine(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int64
	}{
		{"line being written", "old\npart", 4},
		{"no newline at all", "part", 0},
		{"empty log", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := filepath.Join(t.TempDir(), "postgresql.log")
			require.NoError(t, os.WriteFile(log, []byte(tt.content), 0o644))

			c, err := LoadCursor("", log)
			require.NoError(t, err)
			require.NoError(t, c.SkipToEnd())
			assert.Equal(t, tt.want, c.Offset)
		})
	}

	log := filepath.Join(t.TempDir(), "postgresql.log")
	appendFile(t, log, "old\npart")
	c, err := LoadCursor("", log)
	require.NoError(t, err)
	require.NoError(t, c.SkipToEnd())
	appendFile(t, log, "ial\n")
	lines, _, _, err := c.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, lines)
}

func TestLineStartBefore_AcrossChunks(t *testing.T) {
	content := "head\n" + strings.Repeat("x", 200<<10)
	off, err := lineStartBefore(strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)
}

func TestCursor_ReadNew_BoundedReads(t *testing.T) {
	saved := maxReadBytes
	maxReadBytes = 8
	defer func() { maxReadBytes = saved }()

	log := filepath.Join(t.TempDir(), "postgresql.log")
	appendFile(t, log, "aaa\nbbb\nccc\n")

	c, err := LoadCursor("", log)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 5; i++ {
		lines, n, _, err := c.ReadNew()
		require.NoError(t, err)
		got = append(got, lines...)
		require.NoError(t, c.Advance(n))
	}
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, got)
	assert.Equal(t, int64(12), c.Offset)

	// a line longer than one read is split rather than stalling the cursor
	appendFile(t, log, "0123456789\n")
	lines, n, _, err := c.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"01234567"}, lines)
	require.NoError(t, c.Advance(n))
	lines, n, _, err = c.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"89"}, lines)
	require.NoError(t, c.Advance(n))
	assert.Equal(t, int64(23), c.Offset)
}

func TestNew_RejectsColumnMismatch(t *testing.T) {
	sc := &scaler.Params{Columns: []string{"a", "b"}, Mean: []float64{0, 0}, Std: []float64{1, 1}}
	m := &model.Forest{Columns: []string{"b", "a"}}
	_, err := New(Options{PollInterval: time.Second}, parsers.NewPostgresParser(), sc, m, &Cursor{}, nil)
	assert.Error(t, err)

	_, err = New(Options{}, parsers.NewPostgresParser(), sc, &model.Forest{Columns: []string{"a", "b"}}, &Cursor{}, nil)
	assert.Error(t, err)
}

func TestDetector_PollFlagsStressBurst(t *testing.T) {
	gen := simulate.New(3, 20, plus7)
	sc, m := train(t, gen, 120)

	dir := t.TempDir()
	log := filepath.Join(dir, "postgresql.log")
	appendFile(t, log, "")
	cur, err := LoadCursor(filepath.Join(dir, "cursor.json"), log)
	require.NoError(t, err)

	var alerts []Alert
	rep := ReporterFunc(func(_ context.Context, a Alert) error {
		alerts = append(alerts, a)
		return nil
	})
	d, err := New(Options{PollInterval: time.Second, Bands: model.DefaultBands}, parsers.NewPostgresParser(), sc, m, cur, rep)
	require.NoError(t, err)

	// nothing appended yet
	res, err := d.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Record)
	assert.Empty(t, alerts)

	next := t0.Add(200 * width)
	normal := gen.Window(next, width, simulate.ScenarioNormal)
	appendLines(t, log, append(normal, "not a postgres line"))
	res, err = d.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, len(normal)+1, res.Lines)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, len(normal), res.Events)
	normalScore := res.Record.Score

	stress := gen.Window(next.Add(width), width, simulate.ScenarioStress)
	appendLines(t, log, stress)
	res, err = d.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.True(t, res.Record.IsAnomaly)
	assert.Less(t, res.Record.Score, normalScore)
	assert.NotEqual(t, model.SeverityNormal, res.Record.Severity)
	assert.Equal(t, "realtime", res.Record.Source)

	require.NotEmpty(t, alerts)
	last := alerts[len(alerts)-1]
	assert.Len(t, last.Events, len(stress))

	info, err := os.Stat(log)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), cur.Offset)
}

func TestDetector_RunStopsOnCancel(t *testing.T) {
	gen := simulate.New(5, 10, plus7)
	sc, m := train(t, gen, 40)

	log := filepath.Join(t.TempDir(), "postgresql.log")
	appendLines(t, log, gen.Window(t0.Add(100*width), width, simulate.ScenarioNormal))
	cur, err := LoadCursor("", log)
	require.NoError(t, err)

	d, err := New(Options{PollInterval: 10 * time.Millisecond, Bands: model.DefaultBands}, parsers.NewPostgresParser(), sc, m, cur, MultiReporter{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Positive(t, cur.Offset)
}

func TestMultiReporter_JoinsErrors(t *testing.T) {
	calls := 0
	ok := ReporterFunc(func(context.Context, Alert) error { calls++; return nil })
	bad := ReporterFunc(func(context.Context, Alert) error { calls++; return assert.AnError })

	err := MultiReporter{ok, bad, ok}.Report(context.Background(), Alert{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)
	assert.NoError(t, LogReporter{}.Report(context.Background(), Alert{}))
}
