package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream(t *testing.T) {
	t.Run("accumulates blocks and content", func(t *testing.T) {
		s := NewStream("a-1")
		assert.False(t, s.Append(text("Hel")))
		assert.False(t, s.Append(thought("hmm")))
		assert.False(t, s.Append(EncodeToolCall("sql", "q")))
		assert.False(t, s.Append(text("lo")))

		msg := s.Message()
		assert.Equal(t, "a-1", msg.ID)
		assert.Equal(t, RoleAssistant, msg.Role)
		assert.Equal(t, "Helhmmlo", msg.Content)
		assert.Len(t, msg.Blocks, 4)
		assert.NotNil(t, msg.CreatedAt)
		assert.False(t, s.Done())
	})

	t.Run("done block records conversation and is dropped", func(t *testing.T) {
		s := NewStream("a-1")
		s.Append(text("hi"))
		assert.True(t, s.Append(Block{Done: true, ConversationID: 7}))
		assert.True(t, s.Done())
		assert.Equal(t, int64(7), s.ConversationID())
		assert.Len(t, s.Message().Blocks, 1)

		assert.True(t, s.Append(text("late")))
		assert.Equal(t, "hi", s.Message().Content)
	})

	t.Run("snapshots are independent", func(t *testing.T) {
		s := NewStream("a-1")
		s.Append(text("a"))
		snap := s.Message()
		s.Append(text("b"))

		require.Len(t, snap.Blocks, 1)
		assert.Equal(t, "a", snap.Content)
	})

	t.Run("streamed turn segments like reconciled history", func(t *testing.T) {
		s := NewStream("a-1")
		for _, b := range []Block{text("Let me check. "), EncodeToolCall("sql", "q"), EncodeToolResult("sql", "r"), text("Done.")} {
			s.Append(b)
		}
		live := s.Message()

		history := Reconcile([]Message{
			assistant("a-1", "", text("Let me check. "), EncodeToolCall("sql", "q")),
			assistant("a-2", "", EncodeToolResult("sql", "r")),
		})
		require.Len(t, history, 1)

		want := []Segment{TextSegment("Let me check. "), ToolRunSegment("sql", "q", "r")}
		assert.Equal(t, want, Segments(history[0].Blocks))
		assert.Equal(t, want, Segments(live.Blocks)[:2])
	})
}
