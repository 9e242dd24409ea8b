package realtime

import (
	"context"
	"errors"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/model"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/store"
)

// Alert is a flagged realtime bucket together with the events it summarizes.
type Alert struct {
	Record model.Record
	Events []parsers.Event
}

// Reporter delivers alerts. Notification channels (chat, mail, paging)
// plug in here.
type Reporter interface {
	Report(ctx context.Context, a Alert) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, a Alert) error

func (f ReporterFunc) Report(ctx context.Context, a Alert) error { return f(ctx, a) }

// LogReporter writes alerts to the structured log.
type LogReporter struct{}

func (LogReporter) Report(_ context.Context, a Alert) error {
	log := logger.L()
	log.Warnw("anomaly detected",
		"severity", a.Record.Severity,
		"score", a.Record.Score,
		"bucket_start", a.Record.BucketStart,
		"events", len(a.Events),
	)
	for i := range a.Events {
		e := &a.Events[i]
		cmd := ""
		if e.QueryCommand != nil {
			cmd = *e.QueryCommand
		}
		log.Infow("anomalous bucket event",
			"pid", e.PID,
			"user", e.User.String(),
			"database", e.Database.String(),
			"event_type", e.EventType,
			"query_command", cmd,
		)
	}
	return nil
}

// StoreReporter persists alerts so they can be listed later.
type StoreReporter struct {
	Store *store.Store
}

func (r StoreReporter) Report(_ context.Context, a Alert) error {
	_, err := r.Store.Put(a.Record)
	return err
}

// MultiReporter fans an alert out to every reporter and joins their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, a Alert) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
