// Package realtime re-scores a growing PostgreSQL log with the trained
// scaler and model, one poll interval at a time.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/features"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/metrics"
	"github.com/vaibhaw-/anomr/internal/anomr/model"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/scaler"
)

const mode = "realtime"

// Options configures a Detector.
type Options struct {
	PollInterval time.Duration
	Bands        model.Bands
}

// Detector owns one cursor over one log file. It runs a single cooperative
// loop: poll, then wait. Polls never overlap.
type Detector struct {
	opts     Options
	parser   parsers.Parser
	scaler   *scaler.Params
	model    *model.Forest
	cursor   *Cursor
	reporter Reporter
}

// New wires a detector. The scaler and model must agree on their columns.
func New(opts Options, parser parsers.Parser, sc *scaler.Params, m *model.Forest, cur *Cursor, rep Reporter) (*Detector, error) {
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", opts.PollInterval)
	}
	if err := m.CheckColumns(sc.Columns); err != nil {
		return nil, fmt.Errorf("scaler and model disagree: %w", err)
	}
	if rep == nil {
		rep = LogReporter{}
	}
	return &Detector{opts: opts, parser: parser, scaler: sc, model: m, cursor: cur, reporter: rep}, nil
}

// PollResult summarizes one poll.
type PollResult struct {
	Lines   int
	Skipped int
	Events  int
	Rotated bool
	// Record is nil when no events were read.
	Record *model.Record
}

// Poll consumes newly appended lines, scores them as one bucket and reports
// the bucket if it is flagged. Reading nothing new is a no-op.
func (d *Detector) Poll(ctx context.Context) (*PollResult, error) {
	metrics.Polls.Inc()
	lines, consumed, rotated, err := d.cursor.ReadNew()
	if err != nil {
		return nil, err
	}
	res := &PollResult{Lines: len(lines), Rotated: rotated}
	if rotated {
		logger.L().Infow("log shrank below cursor; reading from start", "log", d.cursor.LogPath)
	}
	if len(lines) == 0 {
		if rotated {
			return res, d.cursor.Save()
		}
		return res, nil
	}
	metrics.LinesRead.WithLabelValues(mode).Add(float64(len(lines)))

	var events []parsers.Event
	for _, line := range lines {
		evt, err := d.parser.ParseLine(ctx, line)
		if err != nil {
			if !errors.Is(err, parsers.ErrSkipLine) {
				logger.L().Warnw("parse error", "error", err)
			}
			res.Skipped++
			continue
		}
		events = append(events, *evt)
		metrics.EventsParsed.WithLabelValues(mode, string(evt.EventType)).Inc()
	}
	metrics.LinesSkipped.WithLabelValues(mode).Add(float64(res.Skipped))
	res.Events = len(events)

	if len(events) > 0 {
		rec := d.score(events)
		res.Record = &rec
		if rec.IsAnomaly {
			metrics.Anomalies.WithLabelValues(mode, string(rec.Severity)).Inc()
			if err := d.reporter.Report(ctx, Alert{Record: rec, Events: events}); err != nil {
				logger.L().Errorw("report anomaly", "error", err)
			}
		}
	}

	if err := d.cursor.Advance(consumed); err != nil {
		return res, fmt.Errorf("save cursor: %w", err)
	}
	metrics.CursorOffset.Set(float64(d.cursor.Offset))
	logger.L().Debugw("poll complete", "lines", res.Lines, "events", res.Events, "skipped", res.Skipped, "offset", d.cursor.Offset)
	return res, nil
}

// score summarizes events as a single bucket starting at the earliest event,
// reconciled to the training schema.
func (d *Detector) score(events []parsers.Event) model.Record {
	start := events[0].Timestamp
	for i := range events {
		if events[i].Timestamp.Before(start) {
			start = events[i].Timestamp
		}
	}
	vec := features.AggregateSingle(events, start)
	cols := d.scaler.Columns
	scaled := d.scaler.Apply(cols, [][]float64{vec.Row(cols)})
	rec := d.model.Records(d.opts.Bands, []features.Vector{vec}, scaled)[0]
	rec.Source = mode
	metrics.LastScore.Set(rec.Score)
	return rec
}

// Run polls until ctx is cancelled. Cancellation is observed only while
// waiting between polls; an in-flight poll always completes.
func (d *Detector) Run(ctx context.Context) error {
	logger.L().Infow("realtime detection started", "log", d.cursor.LogPath, "interval", d.opts.PollInterval, "offset", d.cursor.Offset)
	for {
		if res, err := d.Poll(ctx); err != nil {
			logger.L().Warnw("poll failed", "error", err)
		} else if res.Record != nil {
			logger.L().Infow("bucket scored",
				"events", res.Events,
				"score", res.Record.Score,
				"anomaly", res.Record.IsAnomaly,
				"severity", res.Record.Severity)
		}

		timer := time.NewTimer(d.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.L().Infow("realtime detection stopped", "offset", d.cursor.Offset)
			return nil
		case <-timer.C:
		}
	}
}
