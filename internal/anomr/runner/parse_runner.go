package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/metrics"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

const batchMode = "batch"

// ParseStats tracks parsing statistics.
type ParseStats struct {
	RawCount      int
	ParsedCount   int
	RejectedCount int
}

// rejectRecord is written to the reject file for every line that does not
// match the log grammar.
type rejectRecord struct {
	LineNumber int    `json:"line_number"`
	Line       string `json:"line"`
	Reason     string `json:"reason"`
}

// openRejectFile opens the reject file if configured, returns nil if not configured
func openRejectFile(cfg *config.Config) (io.WriteCloser, error) {
	if cfg == nil || cfg.Output.RejectFile == "" {
		return nil, nil
	}
	return os.OpenFile(cfg.Output.RejectFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// parseLoop reads in line by line and hands every parsed event to emit.
// Lines the parser skips go to the reject file when one is configured; any
// other parse error is fatal.
func parseLoop(ctx context.Context, p parsers.Parser, in io.Reader, cfg *config.Config, emit func(*parsers.Event) error) (ParseStats, error) {
	log := logger.L()
	var stats ParseStats

	rejectFile, err := openRejectFile(cfg)
	if err != nil {
		log.Errorw("failed to open reject file",
			"path", cfg.Output.RejectFile,
			"err", err.Error())
		return stats, fmt.Errorf("open reject file: %w", err)
	}
	var rejects *json.Encoder
	if rejectFile != nil {
		defer rejectFile.Close()
		rejects = json.NewEncoder(rejectFile)
		log.Debugw("opened reject file", "path", cfg.Output.RejectFile)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		stats.RawCount++
		if stats.RawCount%1000 == 0 {
			log.Infow("processing progress",
				"lines_processed", stats.RawCount,
				"parsed_count", stats.ParsedCount,
				"rejected_count", stats.RejectedCount)
		}

		line := scanner.Text()
		evt, err := p.ParseLine(ctx, line)
		if err != nil {
			if !errors.Is(err, parsers.ErrSkipLine) {
				log.Errorw("parse error", "err", err.Error(), "line_number", stats.RawCount)
				return stats, fmt.Errorf("parse line %d: %w", stats.RawCount, err)
			}
			stats.RejectedCount++
			if rejects != nil {
				if err := rejects.Encode(rejectRecord{LineNumber: stats.RawCount, Line: line, Reason: "no match"}); err != nil {
					return stats, fmt.Errorf("encode reject: %w", err)
				}
			}
			continue
		}

		stats.ParsedCount++
		metrics.EventsParsed.WithLabelValues(batchMode, string(evt.EventType)).Inc()
		if err := emit(evt); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorw("scanner error", "err", err.Error())
		return stats, fmt.Errorf("scan input: %w", err)
	}

	metrics.LinesRead.WithLabelValues(batchMode).Add(float64(stats.RawCount))
	metrics.LinesSkipped.WithLabelValues(batchMode).Add(float64(stats.RejectedCount))
	return stats, nil
}

// RunParse parses a raw server log and writes one NDJSON event per matched
// line to out. It is factored out from the Cobra command so it can be unit
// tested.
func RunParse(ctx context.Context, p parsers.Parser, in io.Reader, out io.Writer, cfg *config.Config) (ParseStats, error) {
	log := logger.L()
	if cfg != nil {
		log.Infow("starting parse run",
			"db_type", cfg.Input.DBType,
			"input", cfg.Input.FilePath,
			"reject_file", cfg.Output.RejectFile)
	}

	w := bufio.NewWriter(out)
	start := time.Now()
	stats, err := parseLoop(ctx, p, in, cfg, func(evt *parsers.Event) error {
		if err := parsers.WriteEventNDJSON(w, evt); err != nil {
			log.Errorw("encode event", "err", err.Error(), "event_id", evt.EventID)
			return err
		}
		return nil
	})
	if ferr := w.Flush(); err == nil && ferr != nil {
		err = fmt.Errorf("flush events: %w", ferr)
	}
	if err != nil {
		return stats, err
	}

	s := RunSummary{
		Stage:         "parse",
		RawCount:      stats.RawCount,
		ParsedCount:   stats.ParsedCount,
		RejectedCount: stats.RejectedCount,
	}
	if cfg != nil {
		s.Input = cfg.Input.FilePath
		s.Output = cfg.Output.Dir
		s.RejectFile = cfg.Output.RejectFile
	}
	recordRun(cfg, s)

	duration := time.Since(start)
	log.Infow("completed parse run",
		"duration", duration,
		"lines_processed", stats.RawCount,
		"parsed_count", stats.ParsedCount,
		"rejected_count", stats.RejectedCount,
		"lines_per_second", float64(stats.RawCount)/duration.Seconds())
	return stats, nil
}

// ParseEvents parses a raw server log into memory.
func ParseEvents(ctx context.Context, p parsers.Parser, in io.Reader, cfg *config.Config) ([]parsers.Event, ParseStats, error) {
	var events []parsers.Event
	stats, err := parseLoop(ctx, p, in, cfg, func(evt *parsers.Event) error {
		events = append(events, *evt)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	logger.L().Infow("parsed log",
		"lines_processed", stats.RawCount,
		"parsed_count", stats.ParsedCount,
		"rejected_count", stats.RejectedCount)
	return events, stats, nil
}
