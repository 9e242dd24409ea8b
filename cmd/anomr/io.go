package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/runner"
)

// openInput opens path for reading, or stdin when path is empty.
func openInput(path string) (io.Reader, func(), error) {
	if path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// createOutput creates path (and its directory) for writing, or returns
// stdout when path is empty.
func createOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

// eventSource selects where a batch command reads events from: a raw server
// log, or NDJSON written by `anomr parse`.
type eventSource struct {
	input  string
	events string
}

func (s eventSource) load(ctx context.Context, cfg *config.Config) ([]parsers.Event, error) {
	if s.events != "" {
		r, closeIn, err := openInput(s.events)
		if err != nil {
			return nil, err
		}
		defer closeIn()
		events, skipped, err := parsers.ReadEvents(r)
		if err != nil {
			return nil, fmt.Errorf("read events: %w", err)
		}
		logger.L().Infow("loaded events", "path", s.events, "events", len(events), "skipped", skipped)
		return events, nil
	}

	if s.input != "" {
		cfg.Input.FilePath = s.input
	}
	p, err := parsers.NewFactory().NewParser(cfg.Input.DBType)
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}
	r, closeIn, err := openInput(cfg.Input.FilePath)
	if err != nil {
		return nil, err
	}
	defer closeIn()
	events, _, err := runner.ParseEvents(ctx, p, r, cfg)
	return events, err
}
