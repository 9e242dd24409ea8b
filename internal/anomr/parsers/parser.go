package parsers

import (
	"context"
	"errors"
)

// ErrSkipLine indicates the parser couldn't parse the line but processing should continue.
var ErrSkipLine = errors.New("skip line")

// Parser converts a raw log line into an Event.
type Parser interface {
	// ParseLine returns the Event for line, ErrSkipLine if the line does not
	// match the log grammar, or another error for fatal failures.
	ParseLine(ctx context.Context, line string) (*Event, error)
}
