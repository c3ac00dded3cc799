package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/yolodolo42/dagent/internal/mention"
	"github.com/yolodolo42/dagent/internal/transcript"
)

func toolReply() transcript.Message {
	return transcript.Message{
		ID:   "a1",
		Role: transcript.RoleAssistant,
		Blocks: []transcript.Block{
			{Kind: transcript.BlockThought, Data: "look at the schema"},
			transcript.EncodeToolCall("listTables", `{"db":"sales","password":"pw"}`),
			transcript.EncodeToolResult("listTables", "orders, users"),
			{Kind: transcript.BlockText, Data: "There are **two** tables."},
		},
	}
}

func TestRenderer_Message(t *testing.T) {
	t.Run("tool runs collapsed by default", func(t *testing.T) {
		r := NewRenderer(80, "notty")
		out := r.Message(toolReply())

		assert.Contains(t, out, "Agent")
		assert.Contains(t, out, "Thinking")
		assert.Contains(t, out, "look at the schema")
		assert.Contains(t, out, "listTables")
		assert.Contains(t, out, "/tools to expand")
		assert.NotContains(t, out, "orders, users")
		assert.Contains(t, out, "two")
	})

	t.Run("expanded tool runs show redacted parameters", func(t *testing.T) {
		r := NewRenderer(80, "notty")
		r.ShowTools = true
		r.Redact = func(s string) string { return strings.ReplaceAll(s, "pw", "***") }
		out := r.Message(toolReply())

		assert.Contains(t, out, "parameters")
		assert.Contains(t, out, `"db":"sales"`)
		assert.NotContains(t, out, `"pw"`)
		assert.Contains(t, out, "orders, users")
	})

	t.Run("user message keeps mentions", func(t *testing.T) {
		r := NewRenderer(80, "notty")
		out := r.Message(transcript.Message{Role: transcript.RoleUser, Content: "count rows in @orders"})

		assert.Contains(t, out, "You")
		assert.Contains(t, out, "@orders")
	})

	t.Run("wrapping keeps hyphenated mentions whole", func(t *testing.T) {
		r := NewRenderer(24, "notty")
		content := "please look at @sales-warehouse-orders now"
		out := ansi.Strip(r.Message(transcript.Message{Role: transcript.RoleUser, Content: content}))

		var sent []string
		for _, tok := range mention.Tokenize(out) {
			if tok.Kind == mention.Mention {
				sent = append(sent, tok.Text)
			}
		}
		assert.Equal(t, []string{"@sales-warehouse-orders"}, sent)
		assert.Contains(t, out, "at\n@sales-warehouse-orders")
	})

	t.Run("assistant without blocks uses content", func(t *testing.T) {
		r := NewRenderer(80, "notty")
		out := r.Message(transcript.Message{Role: transcript.RoleAssistant, Content: "plain answer"})
		assert.Contains(t, out, "plain answer")
	})

	t.Run("empty tool sections", func(t *testing.T) {
		r := NewRenderer(80, "notty")
		r.ShowTools = true
		out := r.Segments([]transcript.Segment{transcript.ToolRunSegment("orphan", "", "")})
		assert.Contains(t, out, "(empty)")
	})
}

func TestRenderer_Transcript(t *testing.T) {
	r := NewRenderer(60, "notty")
	out := r.Transcript([]transcript.Message{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello"},
	})
	assert.Less(t, strings.Index(out, "hi"), strings.Index(out, "hello"))
}

func TestRenderer_SetWidth(t *testing.T) {
	r := NewRenderer(5, "notty")
	assert.Equal(t, 20, r.Width())

	r.SetWidth(100)
	assert.Equal(t, 100, r.Width())
	assert.NotEmpty(t, r.Markdown("# Title"))
}
