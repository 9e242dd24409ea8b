package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
)

var base = time.Date(2025, 10, 4, 21, 0, 0, 0, time.FixedZone("", 7*3600))

func ev(pid int, user, db string, typ parsers.EventType, offset time.Duration) *parsers.Event {
	return &parsers.Event{
		Timestamp: base.Add(offset),
		PID:       pid,
		User:      parsers.NewIdentity(user),
		Database:  parsers.NewIdentity(db),
		EventType: typ,
	}
}

func TestFilters(t *testing.T) {
	fatal := ev(7001, "Admin", "postgres", parsers.EventFatal, 0)
	audit := ev(7002, "app", "shop", parsers.AuditEventType("select"), time.Minute)
	recv := ev(7003, "", "", parsers.EventConnectReceived, 2*time.Minute)

	tests := []struct {
		name   string
		filter EventFilter
		event  *parsers.Event
		want   bool
	}{
		{"user ignores case", FilterByUser("admin"), fatal, true},
		{"user mismatch", FilterByUser("app"), fatal, false},
		{"unknown user never matches", FilterByUser("[unknown]"), recv, false},
		{"database", FilterByDatabase("SHOP"), audit, true},
		{"pid in set", FilterByPID([]int{1, 7002}), audit, true},
		{"pid not in set", FilterByPID([]int{1}), audit, false},
		{"exact type", FilterByType([]string{"fatal"}), fatal, true},
		{"prefix type", FilterByType([]string{"AUDIT_*"}), audit, true},
		{"prefix type miss", FilterByType([]string{"connect_*"}), audit, false},
		{"prefix type connect", FilterByType([]string{"connect_*"}), recv, true},
		{"window includes start", FilterByWindow(base, base.Add(time.Minute)), fatal, true},
		{"window excludes end", FilterByWindow(base, base.Add(time.Minute)), audit, false},
		{"open window", FilterByWindow(time.Time{}, time.Time{}), audit, true},
		{"last", FilterByLast(base.Add(3*time.Minute), 90*time.Second), recv, true},
		{"last too old", FilterByLast(base.Add(3*time.Minute), 90*time.Second), fatal, false},
		{"exclude audit drops audit", FilterExcludeAudit(), audit, false},
		{"exclude audit keeps fatal", FilterExcludeAudit(), fatal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter(tt.event))
		})
	}
}

func TestBuildFilters(t *testing.T) {
	assert.Empty(t, BuildFilters(Options{}, base))
	assert.True(t, matchAll(ev(1, "a", "b", parsers.EventLog, 0), nil))

	opts := Options{User: "app", Types: []string{"AUDIT_*"}, Since: base, Last: time.Hour, ExcludeAudit: true}
	// Last wins over Since, so four filters
	assert.Len(t, BuildFilters(opts, base), 4)

	// app's audit event is dropped by ExcludeAudit
	assert.False(t, matchAll(ev(1, "app", "shop", parsers.AuditEventType("select"), 0), BuildFilters(opts, base)))
}
