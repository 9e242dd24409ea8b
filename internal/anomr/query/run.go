// Package query filters NDJSON events written by the parse stage, for
// drilling into the sessions behind an anomaly.
package query

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

// Run streams events from in, writes those matching every filter to out as
// NDJSON and returns the run statistics. Lines that do not decode are
// counted and skipped. With opts.Summary set, matches are only counted and
// out may be nil.
func Run(in io.Reader, out io.Writer, opts Options, now time.Time) (*Stats, error) {
	filters := BuildFilters(opts, now)
	stats := NewStats()

	var w *bufio.Writer
	if !opts.Summary {
		w = bufio.NewWriter(out)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e parsers.Event
		if err := json.Unmarshal(line, &e); err != nil {
			stats.ErrorEvents++
			logger.L().Debugw("skipping undecodable event", "err", err.Error())
			continue
		}
		stats.InputEvents++

		if !matchAll(&e, filters) {
			continue
		}
		stats.IncrementMatched(&e)
		if w != nil {
			if err := parsers.WriteEventNDJSON(w, &e); err != nil {
				return stats, fmt.Errorf("write event: %w", err)
			}
		}
		if opts.Limit > 0 && stats.MatchedEvents >= opts.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	if w != nil {
		if err := w.Flush(); err != nil {
			return stats, fmt.Errorf("flush events: %w", err)
		}
	}
	return stats, nil
}

// ParseDuration extends time.ParseDuration with a day unit, e.g. "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid days value: %s", days)
		}
		if n < 0 {
			return 0, fmt.Errorf("days cannot be negative: %d", n)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
