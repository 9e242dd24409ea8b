package parsers

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
)

// CSVHeader is the column order of exported event records.
var CSVHeader = []string{
	"pid", "user", "database", "event_type", "session_duration_sec",
	"query_command", "query_text", "timestamp",
}

// WriteEventNDJSON writes evt as a single JSON line.
func WriteEventNDJSON(w io.Writer, evt *Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// ReadEvents decodes NDJSON event records. Malformed lines are skipped and
// counted rather than failing the whole read.
func ReadEvents(r io.Reader) ([]Event, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		events  []Event
		skipped int
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			skipped++
			logger.L().Debugw("skipping malformed event record", "line", lineNo, "error", err)
			continue
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return events, skipped, fmt.Errorf("read events: %w", err)
	}
	return events, skipped, nil
}

// WriteEventsCSV writes events with CSVHeader columns.
func WriteEventsCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i := range events {
		if err := cw.Write(EventCSVRow(&events[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EventCSVRow renders evt in CSVHeader order.
func EventCSVRow(evt *Event) []string {
	return []string{
		strconv.Itoa(evt.PID),
		evt.User.String(),
		evt.Database.String(),
		string(evt.EventType),
		strconv.FormatFloat(evt.SessionDurationSec, 'f', -1, 64),
		derefString(evt.QueryCommand),
		derefString(evt.QueryText),
		evt.Timestamp.Format(TimestampLayout),
	}
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
