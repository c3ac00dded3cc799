package mention

import (
	"context"
	"strconv"
	"strings"
)

// Level is a step of the mention drill-down. The zero value is Closed.
type Level int

const (
	Closed Level = iota
	Connection
	Database
	Schema
	Table
)

func (l Level) String() string {
	switch l {
	case Connection:
		return "connection"
	case Database:
		return "database"
	case Schema:
		return "schema"
	case Table:
		return "table"
	default:
		return "closed"
	}
}

// Filter carries the identifying fields chosen so far. It is the parent
// filter of the next level's candidate fetch and, once a mention is
// confirmed, the chat context the mention points at.
type Filter struct {
	ConnectionID int64  `json:"connectionId,omitempty"`
	DatabaseName string `json:"databaseName,omitempty"`
	SchemaName   string `json:"schemaName,omitempty"`
}

// Item is a selectable candidate at one level.
type Item struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Payload Filter `json:"payload"`
}

// Provider loads the candidates of a level under a parent filter.
type Provider interface {
	Candidates(ctx context.Context, level Level, filter Filter) ([]Item, error)
}

// Request describes a candidate fetch issued by the session. Seq ties the
// eventual Result to the session state that asked for it.
type Request struct {
	Seq    uint64
	Level  Level
	Filter Filter
}

// Result is the outcome of a Request.
type Result struct {
	Seq   uint64
	Level Level
	Items []Item
	Err   error
}

// Load runs req against p. It touches no session state and may run on any
// goroutine; hand the Result back to Session.Apply on the owning one.
func Load(ctx context.Context, p Provider, req Request) Result {
	items, err := p.Candidates(ctx, req.Level, req.Filter)
	return Result{Seq: req.Seq, Level: req.Level, Items: items, Err: err}
}

// Confirmation is emitted when a mention is resolved. Short is the last
// path segment of the chosen item; Full is the qualified
// @connection/database/schema/table path.
type Confirmation struct {
	Short  string
	Full   string
	Filter Filter
}

// Outcome is what a session transition asks of its host: a fetch to start,
// a confirmed mention to splice, or nothing.
type Outcome struct {
	Fetch     *Request
	Confirmed *Confirmation
}

// Session tracks an in-progress @mention. It is driven from a single event
// loop and is not safe for concurrent use.
type Session struct {
	level       Level
	candidates  []Item
	highlighted int
	loading     bool
	err         string

	filter Filter
	path   []string
	seq    uint64
}

// NewSession returns a closed session.
func NewSession() *Session {
	return &Session{highlighted: -1}
}

func (s *Session) Level() Level { return s.level }
func (s *Session) IsOpen() bool { return s.level != Closed }
func (s *Session) Candidates() []Item { return s.candidates }
func (s *Session) Highlighted() int { return s.highlighted }
func (s *Session) Loading() bool { return s.loading }
func (s *Session) Err() string { return s.err }
func (s *Session) Filter() Filter { return s.filter }
func (s *Session) Path() []string { return append([]string(nil), s.path...) }

// SetHighlighted moves the highlight to i when it names a candidate.
func (s *Session) SetHighlighted(i int) {
	if i >= 0 && i < len(s.candidates) {
		s.highlighted = i
	}
}

// Open enters the connection level and returns the fetch to run. Opening an
// already open session is a no-op and returns nil, so the host can call it
// on every keystroke inside a trigger.
func (s *Session) Open() *Request {
	if s.IsOpen() {
		return nil
	}
	s.reset()
	return s.enter(Connection)
}

// Advance selects item at the current level. Below the table level it
// descends and returns the next fetch; at the table level it confirms.
func (s *Session) Advance(item Item) Outcome {
	switch s.level {
	case Closed:
		return Outcome{}
	case Table:
		c := s.Confirm(item)
		return Outcome{Confirmed: &c}
	}

	switch s.level {
	case Connection:
		s.filter = Filter{ConnectionID: connectionID(item)}
	case Database:
		s.filter.DatabaseName = firstNonEmpty(item.Payload.DatabaseName, item.Label)
	case Schema:
		s.filter.SchemaName = firstNonEmpty(item.Payload.SchemaName, item.Label)
	}
	s.path = append(s.path, item.Label)
	return Outcome{Fetch: s.enter(s.level + 1)}
}

// Confirm resolves the mention to item and closes the session.
func (s *Session) Confirm(item Item) Confirmation {
	segments := append(s.Path(), item.Label)
	c := Confirmation{
		Short:  ShortName(item.Label),
		Full:   "@" + strings.Join(segments, "/"),
		Filter: s.filter,
	}
	switch s.level {
	case Connection:
		c.Filter = Filter{ConnectionID: connectionID(item)}
	case Database:
		c.Filter.DatabaseName = firstNonEmpty(item.Payload.DatabaseName, item.Label)
	case Schema:
		c.Filter.SchemaName = firstNonEmpty(item.Payload.SchemaName, item.Label)
	}
	s.Close()
	return c
}

// HandleKey applies a navigation key and reports whether it was consumed.
// Keys use bubbletea names: up, down, enter, tab, esc.
func (s *Session) HandleKey(key string) (bool, Outcome) {
	if !s.IsOpen() {
		return false, Outcome{}
	}

	n := len(s.candidates)
	switch key {
	case "up":
		if n > 0 {
			if s.highlighted <= 0 {
				s.highlighted = n - 1
			} else {
				s.highlighted--
			}
		}
		return true, Outcome{}
	case "down":
		if n > 0 {
			s.highlighted = (s.highlighted + 1) % n
		}
		return true, Outcome{}
	case "enter", "tab":
		if s.highlighted < 0 || s.highlighted >= n {
			return true, Outcome{}
		}
		return true, s.Advance(s.candidates[s.highlighted])
	case "esc":
		s.Close()
		return true, Outcome{}
	}
	return false, Outcome{}
}

// Apply installs a fetch result. Results for a level the session has left,
// or issued before the session was closed or reopened, are discarded and
// Apply returns false.
func (s *Session) Apply(res Result) bool {
	if !s.IsOpen() || res.Seq != s.seq || res.Level != s.level {
		return false
	}
	s.loading = false
	if res.Err != nil {
		s.err = res.Err.Error()
		return true
	}
	s.err = ""
	s.candidates = res.Items
	s.highlighted = -1
	if len(res.Items) > 0 {
		s.highlighted = 0
	}
	return true
}

// Retry reissues the fetch for the current level.
func (s *Session) Retry() *Request {
	if !s.IsOpen() {
		return nil
	}
	return s.enter(s.level)
}

// Close resets the session. Any outstanding fetch becomes stale.
func (s *Session) Close() {
	s.reset()
	s.seq++
}

func (s *Session) reset() {
	s.level = Closed
	s.candidates = nil
	s.highlighted = -1
	s.loading = false
	s.err = ""
	s.filter = Filter{}
	s.path = nil
}

func (s *Session) enter(level Level) *Request {
	s.seq++
	s.level = level
	s.candidates = nil
	s.highlighted = -1
	s.loading = true
	s.err = ""
	return &Request{Seq: s.seq, Level: level, Filter: s.filter}
}

func connectionID(item Item) int64 {
	if item.Payload.ConnectionID != 0 {
		return item.Payload.ConnectionID
	}
	id, _ := strconv.ParseInt(item.ID, 10, 64)
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
