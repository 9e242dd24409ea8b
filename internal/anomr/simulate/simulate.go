// Package simulate generates synthetic PostgreSQL server log lines for
// exercising the pipeline: steady background traffic and stress bursts.
package simulate

import (
	"fmt"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

type Scenario string

const (
	ScenarioNormal Scenario = "normal"
	// ScenarioStress multiplies normal volume by StressMultiplier and injects
	// failed authentications amounting to StressFatalShare of that volume.
	ScenarioStress Scenario = "stress"

	StressMultiplier = 10
	StressFatalShare = 0.30
)

const lineTimeLayout = "2006-01-02 15:04:05.000 -07"

var statements = []struct {
	class, command, sql string
}{
	{"READ", "SELECT", "SELECT id, name FROM customers WHERE id = $1"},
	{"READ", "SELECT", "SELECT count(*) FROM orders"},
	{"WRITE", "INSERT", "INSERT INTO orders (customer_id, total) VALUES ($1, $2)"},
	{"WRITE", "UPDATE", "UPDATE inventory SET stock = stock - 1 WHERE sku = $1"},
	{"WRITE", "DELETE", "DELETE FROM sessions WHERE expires_at < now()"},
}

// Generator produces deterministic log lines for a given seed.
type Generator struct {
	faker     *gofakeit.Faker
	loc       *time.Location
	users     []string
	databases []string
	sessions  int
	nextPID   int
}

// New returns a generator emitting roughly sessionsPerWindow sessions per
// normal window, with timestamps rendered in loc.
func New(seed uint64, sessionsPerWindow int, loc *time.Location) *Generator {
	f := gofakeit.New(seed)
	users := make([]string, 6)
	for i := range users {
		users[i] = f.Username()
	}
	if loc == nil {
		loc = time.UTC
	}
	if sessionsPerWindow <= 0 {
		sessionsPerWindow = 20
	}
	return &Generator{
		faker:     f,
		loc:       loc,
		users:     users,
		databases: []string{"sales", "inventory", "postgres"},
		sessions:  sessionsPerWindow,
		nextPID:   7000,
	}
}

type line struct {
	ts   time.Time
	text string
}

func (g *Generator) format(ts time.Time, pid int, user, db, level, msg string) line {
	prefix := ""
	if user != "" || db != "" {
		prefix = user + "@" + db + " "
	}
	return line{
		ts:   ts,
		text: fmt.Sprintf("%s [%d] %s%s:  %s", ts.In(g.loc).Format(lineTimeLayout), pid, prefix, level, msg),
	}
}

func (g *Generator) offset(width time.Duration) time.Duration {
	ms := int(width / time.Millisecond)
	if ms <= 1 {
		return 0
	}
	return time.Duration(g.faker.Number(0, ms-1)) * time.Millisecond
}

// session emits one client session: connect, a few statements, disconnect.
// All timestamps stay inside [start, start+width).
func (g *Generator) session(start time.Time, width time.Duration) []line {
	g.nextPID++
	pid := g.nextPID
	user := g.faker.RandomString(g.users)
	db := g.faker.RandomString(g.databases)

	n := g.faker.Number(1, 4)
	offs := make([]time.Duration, n+3)
	for i := range offs {
		offs[i] = g.offset(width)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	at := func(i int) time.Time { return start.Add(offs[i]) }

	out := []line{
		g.format(at(0), pid, "[unknown]", "[unknown]", "LOG", "connection received: host="+g.faker.IPv4Address()+" port="+fmt.Sprint(g.faker.Number(30000, 60000))),
		g.format(at(1), pid, user, db, "LOG", fmt.Sprintf("connection authorized: user=%s database=%s", user, db)),
	}
	for i := 0; i < n; i++ {
		st := statements[g.faker.Number(0, len(statements)-1)]
		if g.faker.Number(1, 100) <= 5 {
			out = append(out, g.format(at(2+i), pid, user, db, "ERROR", "relation \"tmp_report\" does not exist"))
			continue
		}
		out = append(out, g.format(at(2+i), pid, user, db, "LOG",
			fmt.Sprintf("AUDIT: SESSION,%d,1,%s,%s,,,\"%s\",<not logged>", i+1, st.class, st.command, st.sql)))
	}
	dur := offs[n+2] - offs[0]
	out = append(out, g.format(at(n+2), pid, user, db, "LOG",
		fmt.Sprintf("disconnection: session time: %s user=%s database=%s host=%s", sessionTime(dur), user, db, g.faker.IPv4Address())))
	return out
}

func (g *Generator) failedLogin(start time.Time, width time.Duration) line {
	g.nextPID++
	user := g.faker.RandomString(append([]string{"admin", "root", "postgres"}, g.users...))
	return g.format(start.Add(g.offset(width)), g.nextPID, user, "postgres", "FATAL",
		fmt.Sprintf("password authentication failed for user \"%s\"", user))
}

// Window returns the log lines for one window starting at start, sorted by time.
func (g *Generator) Window(start time.Time, width time.Duration, scenario Scenario) []string {
	var lines []line
	sessions := g.sessions + g.faker.Number(-g.sessions/5, g.sessions/5)
	if scenario == ScenarioStress {
		sessions *= StressMultiplier
	}
	for i := 0; i < sessions; i++ {
		lines = append(lines, g.session(start, width)...)
	}
	// background: an occasional failed login even in normal traffic
	if scenario != ScenarioStress && g.faker.Number(1, 100) <= 30 {
		lines = append(lines, g.failedLogin(start, width))
	}
	if scenario == ScenarioStress {
		fatal := int(float64(len(lines)) * StressFatalShare)
		for i := 0; i < fatal; i++ {
			lines = append(lines, g.failedLogin(start, width))
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ts.Before(lines[j].ts) })
	out := make([]string, len(lines))
	for i := range lines {
		out[i] = lines[i].text
	}
	return out
}

// Series returns count consecutive windows from start; windows whose index is
// in stress use ScenarioStress.
func (g *Generator) Series(start time.Time, width time.Duration, count int, stress map[int]bool) []string {
	var out []string
	for i := 0; i < count; i++ {
		sc := ScenarioNormal
		if stress[i] {
			sc = ScenarioStress
		}
		out = append(out, g.Window(start.Add(time.Duration(i)*width), width, sc)...)
	}
	return out
}

// sessionTime renders d the way PostgreSQL logs session time (H:MM:SS.mmm).
func sessionTime(d time.Duration) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms%1000)
}
