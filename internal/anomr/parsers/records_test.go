package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventNDJSON_RoundTrip(t *testing.T) {
	lines := []string{
		`2025-10-04 20:59:26.030 +07 [7002] [unknown]@[unknown] LOG:  connection received: host=[local]`,
		`2025-10-04 21:00:00.000 +07 [7002] postgres@template1 LOG:  disconnection: session time: 0:00:05.120 user=postgres database=template1 host=[local]`,
		`2025-10-04 21:02:00.000 +07 [7003] alice@sales LOG:  AUDIT: SESSION,1,1,READ,SELECT,,,"SELECT * FROM t;",<not logged>`,
	}
	p := NewPostgresParser()

	var buf bytes.Buffer
	var want []*Event
	for _, line := range lines {
		evt, err := p.ParseLine(context.Background(), line)
		require.NoError(t, err)
		require.NoError(t, WriteEventNDJSON(&buf, evt))
		want = append(want, evt)
	}

	got, skipped, err := ReadEvents(&buf)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, got, len(want))

	for i := range want {
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
		assert.Equal(t, want[i].EventID, got[i].EventID)
		assert.Equal(t, want[i].EventType, got[i].EventType)
		assert.Equal(t, want[i].PID, got[i].PID)
		assert.Equal(t, want[i].User, got[i].User)
		assert.Equal(t, want[i].Database, got[i].Database)
		assert.Equal(t, want[i].SessionDurationSec, got[i].SessionDurationSec)
		assert.Equal(t, want[i].QueryText, got[i].QueryText)
		assert.Equal(t, want[i].AuditClass, got[i].AuditClass)
	}
}

func TestEventNDJSON_UnknownIdentityIsNeverNull(t *testing.T) {
	var buf bytes.Buffer
	evt := &Event{Timestamp: time.Date(2025, 10, 4, 21, 0, 0, 0, plus7), PID: 1, EventType: EventFatal}
	require.NoError(t, WriteEventNDJSON(&buf, evt))
	assert.Contains(t, buf.String(), `"user":"[unknown]"`)
	assert.Contains(t, buf.String(), `"database":"[unknown]"`)
	assert.Contains(t, buf.String(), `"query_text":null`)
	assert.Contains(t, buf.String(), `"timestamp":"2025-10-04T21:00:00.000+07:00"`)
}

func TestReadEvents_ForeignTimestampsAndMalformed(t *testing.T) {
	input := strings.Join([]string{
		`{"pid":1,"user":"alice","database":null,"event_type":"FATAL","session_duration_sec":0,"query_command":null,"query_text":null,"timestamp":"2017-07-19 03:21:51+00:00"}`,
		`not json`,
		``,
		`{"pid":2,"user":"","database":"sales","event_type":"","session_duration_sec":0,"timestamp":"2025-10-04T21:00:00.000+07:00"}`,
		`{"pid":3,"event_type":"LOG","timestamp":"not a time"}`,
	}, "\n")

	got, skipped, err := ReadEvents(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, got, 2)

	assert.True(t, time.Date(2017, 7, 19, 3, 21, 51, 0, time.UTC).Equal(got[0].Timestamp))
	assert.Equal(t, Identity("alice"), got[0].User)
	assert.Equal(t, UnknownIdentity, got[0].Database)

	assert.Equal(t, EventUnknown, got[1].EventType)
	assert.Equal(t, UnknownIdentity, got[1].User)
}

func TestWriteEventsCSV(t *testing.T) {
	q := "SELECT 1"
	events := []Event{
		{PID: 7, User: "alice", Database: "sales", EventType: "AUDIT_SELECT", QueryText: &q,
			Timestamp: time.Date(2025, 10, 4, 21, 0, 0, 0, plus7)},
		{PID: 8, EventType: EventDisconnect, SessionDurationSec: 5.12,
			Timestamp: time.Date(2025, 10, 4, 21, 0, 1, 0, plus7)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEventsCSV(&buf, events))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"7", "alice", "sales", "AUDIT_SELECT", "0", "", "SELECT 1", "2025-10-04T21:00:00.000+07:00"}, rows[1])
	assert.Equal(t, "[unknown]", rows[2][1])
	assert.Equal(t, "5.12", rows[2][4])
}
