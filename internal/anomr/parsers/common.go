package parsers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// logTimeLayout matches the "<date> <time.mmm> <±HH>" log prefix.
const logTimeLayout = "2006-01-02 15:04:05.000 -07"

// ParseTimestamp parses a persisted event timestamp. It tries the native
// layouts first and falls back to dateparse for externally produced files.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, logTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseAny(s)
}

// parseSessionTime converts a PostgreSQL session time ("H:MM:SS.fff" or
// "D HH:MM:SS.fff", hours may exceed 24) to seconds.
func parseSessionTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	var days float64
	if f := strings.Fields(s); len(f) > 1 {
		d, err := strconv.ParseFloat(f[0], 64)
		if err != nil {
			return 0, fmt.Errorf("session time %q: bad day count", s)
		}
		days = d
		s = f[len(f)-1]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("session time %q: want h:mm:ss", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("session time %q: hours: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("session time %q: minutes: %w", s, err)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("session time %q: seconds: %w", s, err)
	}
	if days < 0 || h < 0 || m < 0 || sec < 0 {
		return 0, fmt.Errorf("session time %q: negative component", s)
	}
	return days*86400 + float64(h)*3600 + float64(m)*60 + sec, nil
}

// extractField returns the token following key (e.g. "user=") in a message
// body, or "" when absent. Keys match case-sensitively, as the server
// writes them.
func extractField(msg, key string) string {
	idx := strings.Index(msg, key)
	if idx < 0 {
		return ""
	}
	rem := strings.TrimLeft(msg[idx+len(key):], ` "'`)
	fields := strings.Fields(rem)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `",;`)
}

func extractUserFromLine(msg string) string { return extractField(msg, "user=") }

func extractDBFromLine(msg string) string { return extractField(msg, "database=") }

// ptrString returns a *string or nil for empty input.
func ptrString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func trimmedPtr(p *string) *string {
	if p == nil {
		return nil
	}
	return ptrString(*p)
}
