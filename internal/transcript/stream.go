package transcript

import (
	"strings"
	"time"
)

// Stream folds the live block stream of one assistant turn into a single
// Message. It is not safe for concurrent use; the caller feeds blocks from
// one goroutine in arrival order.
type Stream struct {
	msg            Message
	content        strings.Builder
	conversationID int64
	done           bool
}

// NewStream starts an empty assistant message with the given id.
func NewStream(id string) *Stream {
	now := time.Now()
	return &Stream{msg: Message{ID: id, Role: RoleAssistant, CreatedAt: &now}}
}

// Append adds one received block and reports whether the turn is finished.
// The terminal done block only carries the conversation id and is not
// kept. Blocks received after done are ignored.
func (s *Stream) Append(b Block) bool {
	if s.done {
		return true
	}
	if b.ConversationID != 0 {
		s.conversationID = b.ConversationID
	}
	if b.Done {
		s.done = true
		return true
	}
	s.msg.Blocks = append(s.msg.Blocks, b)
	if b.IsContent() {
		s.content.WriteString(b.Data)
	}
	return false
}

// Done reports whether the terminal block has been received.
func (s *Stream) Done() bool { return s.done }

// ConversationID is the id announced by the backend, or 0 if none yet.
func (s *Stream) ConversationID() int64 { return s.conversationID }

// Message returns a snapshot of the assembled message. Later appends do not
// affect the returned value.
func (s *Stream) Message() Message {
	out := s.msg
	out.Content = s.content.String()
	out.Blocks = append([]Block(nil), s.msg.Blocks...)
	return out
}
