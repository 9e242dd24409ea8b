package parsers

import (
	"context"
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
)

// PostgresParser parses PostgreSQL server log lines written with
// log_line_prefix = '%m [%p] %q%u@%d '.
//
//	2025-10-04 20:59:26.037 +07 [7002] postgres@template1 LOG:  connection authorized: user=postgres database=template1
//
// The prefix is tokenized first, then the message body is classified by a
// fixed, priority-ordered list of sub-matchers. The first match wins; lines
// that no sub-matcher claims keep their severity level as event type.
type PostgresParser struct {
	matchers []subMatcher
}

// NewPostgresParser constructs a PostgresParser with the default sub-matchers.
func NewPostgresParser() *PostgresParser {
	return &PostgresParser{matchers: defaultSubMatchers}
}

// lineRe captures timestamp, offset, pid, optional user@database, level and message.
var lineRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}) ([+-]\d{2}) \[([^\]]*)\] (?:(\S*)@(\S*) )?([A-Z]+):\s*(.*)$`)

// eventNamespace seeds deterministic event IDs, so re-parsing a line yields the same ID.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/vaibhaw-/anomr/events"))

// lineHeader is the tokenized log prefix plus the raw message body.
type lineHeader struct {
	ts       time.Time
	pid      int
	user     string
	database string
	level    string
	message  string
}

func tokenize(line string) (lineHeader, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return lineHeader{}, false
	}
	ts, err := time.Parse(logTimeLayout, m[1]+" "+m[2])
	if err != nil {
		return lineHeader{}, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(m[3]))
	if err != nil {
		pid = 0
	}
	return lineHeader{
		ts:       ts,
		pid:      pid,
		user:     m[4],
		database: m[5],
		level:    m[6],
		message:  m[7],
	}, true
}

// ParseLine implements Parser. It is pure: the same line always yields an
// identical Event.
func (p *PostgresParser) ParseLine(ctx context.Context, line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrSkipLine
	}
	h, ok := tokenize(line)
	if !ok {
		return nil, ErrSkipLine
	}

	evt := &Event{
		EventID:   uuid.NewSHA1(eventNamespace, []byte(line)).String(),
		Timestamp: h.ts,
		PID:       h.pid,
		User:      NewIdentity(h.user),
		Database:  NewIdentity(h.database),
	}
	for _, m := range p.matchers {
		if m.match(&h, evt) {
			return evt, nil
		}
	}
	evt.EventType = EventType(h.level)
	return evt, nil
}

// subMatcher claims a message body and fills the event type and payload.
type subMatcher struct {
	name  string
	match func(h *lineHeader, evt *Event) bool
}

var (
	disconnectMatcher = subMatcher{name: "disconnect", match: matchDisconnect}
	auditMatcher      = subMatcher{name: "audit", match: matchAudit}
	severeMatcher     = subMatcher{name: "severe", match: matchSevere}
	connectMatcher    = subMatcher{name: "connect", match: matchConnect}

	defaultSubMatchers = []subMatcher{disconnectMatcher, auditMatcher, severeMatcher, connectMatcher}
)

var sessionTimeRe = regexp.MustCompile(`session time:\s*(.*?)(?:\s+user=|\s+database=|\s+host=|$)`)

func matchDisconnect(h *lineHeader, evt *Event) bool {
	if !strings.Contains(h.message, "disconnection:") {
		return false
	}
	evt.EventType = EventDisconnect
	fillIdentityFromBody(h.message, evt)

	raw := ""
	if m := sessionTimeRe.FindStringSubmatch(h.message); m != nil {
		raw = m[1]
	}
	d, err := parseSessionTime(raw)
	if err != nil {
		logger.L().Debugw("malformed session duration", "pid", h.pid, "raw", raw, "error", err)
		d = 0
	}
	evt.SessionDurationSec = d
	return true
}

// matchAudit handles pgAudit payloads:
//
//	AUDIT: SESSION,1,1,READ,SELECT,,,"SELECT 1;",<not logged>
func matchAudit(h *lineHeader, evt *Event) bool {
	idx := strings.Index(h.message, "AUDIT:")
	if idx < 0 {
		return false
	}
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(h.message[idx+len("AUDIT:"):])))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	tokens, err := r.Read()
	if err != nil || len(tokens) < 5 {
		return false
	}
	switch strings.TrimSpace(tokens[0]) {
	case "SESSION", "OBJECT":
	default:
		return false
	}
	command := strings.TrimSpace(tokens[4])
	if command == "" {
		return false
	}

	evt.EventType = AuditEventType(command)
	evt.AuditClass = ptrString(tokens[3])
	evt.QueryCommand = ptrString(command)
	if len(tokens) > 7 {
		evt.QueryText = ptrString(tokens[7])
	}
	return true
}

func matchSevere(h *lineHeader, evt *Event) bool {
	switch EventType(h.level) {
	case EventFatal, EventError, EventPanic:
		evt.EventType = EventType(h.level)
		return true
	}
	return false
}

func matchConnect(h *lineHeader, evt *Event) bool {
	switch {
	case strings.Contains(h.message, "connection received:"):
		evt.EventType = EventConnectReceived
	case strings.Contains(h.message, "connection authorized:"):
		evt.EventType = EventConnectAuthorized
		fillIdentityFromBody(h.message, evt)
	default:
		return false
	}
	return true
}

// fillIdentityFromBody uses user=/database= fields from the message body
// when the prefix did not carry them.
func fillIdentityFromBody(msg string, evt *Event) {
	if !evt.User.Known() {
		evt.User = NewIdentity(extractUserFromLine(msg))
	}
	if !evt.Database.Known() {
		evt.Database = NewIdentity(extractDBFromLine(msg))
	}
}
