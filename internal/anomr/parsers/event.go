package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType classifies a parsed log line. Audit events form an open family
// named AUDIT_<COMMAND>.
type EventType string

const (
	EventLog               EventType = "LOG"
	EventError             EventType = "ERROR"
	EventFatal             EventType = "FATAL"
	EventPanic             EventType = "PANIC"
	EventDisconnect        EventType = "DISCONNECT"
	EventConnectReceived   EventType = "CONNECT_RECEIVED"
	EventConnectAuthorized EventType = "CONNECT_AUTHORIZED"
	EventUnknown           EventType = "UNKNOWN"

	auditPrefix = "AUDIT_"
)

// AuditEventType returns the event type for an audited command keyword,
// e.g. "create table" -> AUDIT_CREATE_TABLE.
func AuditEventType(command string) EventType {
	cmd := strings.ToUpper(strings.Join(strings.Fields(command), "_"))
	if cmd == "" {
		cmd = string(EventUnknown)
	}
	return EventType(auditPrefix + cmd)
}

func (t EventType) IsAudit() bool {
	return strings.HasPrefix(string(t), auditPrefix)
}

// ColumnName is the feature column counting events of this type.
func (t EventType) ColumnName() string {
	return "count_" + strings.ToLower(string(t))
}

// Identity is a user or database name. Unauthenticated lines carry the
// UnknownIdentity sentinel instead of an empty value so that grouping by
// user or database never drops them.
type Identity string

const UnknownIdentity Identity = "[unknown]"

// NewIdentity returns UnknownIdentity for empty or placeholder names.
func NewIdentity(name string) Identity {
	name = strings.TrimSpace(name)
	if name == "" || name == string(UnknownIdentity) {
		return UnknownIdentity
	}
	return Identity(name)
}

func (i Identity) Known() bool {
	return i != UnknownIdentity && i != ""
}

func (i Identity) String() string {
	if i == "" {
		return string(UnknownIdentity)
	}
	return string(i)
}

// TimestampLayout is the persisted timestamp form; it keeps the original offset.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is one parsed log line.
type Event struct {
	EventID            string
	Timestamp          time.Time
	PID                int
	User               Identity
	Database           Identity
	EventType          EventType
	SessionDurationSec float64
	QueryCommand       *string
	QueryText          *string
	AuditClass         *string
}

// eventRecord is the exchanged form of an Event.
type eventRecord struct {
	EventID            string  `json:"event_id,omitempty"`
	PID                int     `json:"pid"`
	User               string  `json:"user"`
	Database           string  `json:"database"`
	EventType          string  `json:"event_type"`
	SessionDurationSec float64 `json:"session_duration_sec"`
	QueryCommand       *string `json:"query_command"`
	QueryText          *string `json:"query_text"`
	AuditClass         *string `json:"audit_class,omitempty"`
	Timestamp          string  `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventRecord{
		EventID:            e.EventID,
		PID:                e.PID,
		User:               e.User.String(),
		Database:           e.Database.String(),
		EventType:          string(e.EventType),
		SessionDurationSec: e.SessionDurationSec,
		QueryCommand:       e.QueryCommand,
		QueryText:          e.QueryText,
		AuditClass:         e.AuditClass,
		Timestamp:          e.Timestamp.Format(TimestampLayout),
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var rec eventRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		return fmt.Errorf("event timestamp %q: %w", rec.Timestamp, err)
	}
	typ := EventType(strings.TrimSpace(rec.EventType))
	if typ == "" {
		typ = EventUnknown
	}
	*e = Event{
		EventID:            rec.EventID,
		Timestamp:          ts,
		PID:                rec.PID,
		User:               NewIdentity(rec.User),
		Database:           NewIdentity(rec.Database),
		EventType:          typ,
		SessionDurationSec: rec.SessionDurationSec,
		QueryCommand:       trimmedPtr(rec.QueryCommand),
		QueryText:          trimmedPtr(rec.QueryText),
		AuditClass:         trimmedPtr(rec.AuditClass),
	}
	return nil
}
