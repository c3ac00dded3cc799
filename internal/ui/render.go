package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/yolodolo42/dagent/internal/transcript"
)

// Renderer turns messages into terminal text. Text segments are rendered
// as Markdown; thoughts and tool runs are wrapped plain text.
type Renderer struct {
	width int
	style string
	md    *glamour.TermRenderer

	// ShowTools expands tool runs to show parameters and response.
	ShowTools bool
	// Redact, when set, filters tool parameters before display.
	Redact func(string) string
}

// NewRenderer creates a renderer for the given width. style is a glamour
// standard style name; "auto" picks one from the terminal background.
func NewRenderer(width int, style string) *Renderer {
	r := &Renderer{style: style}
	r.SetWidth(width)
	return r
}

// SetWidth rebuilds the Markdown renderer for a new terminal width.
func (r *Renderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if width == r.width && r.md != nil {
		return
	}
	r.width = width

	styleOpt := glamour.WithStandardStyle(r.style)
	if r.style == "" || r.style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width-2))
	if err != nil {
		// Fallback to plain wrapped text if renderer initialization fails
		md = nil
	}
	r.md = md
}

// Width is the current wrap width.
func (r *Renderer) Width() int { return r.width }

// Markdown renders content, returning wrapped plain text on failure.
func (r *Renderer) Markdown(content string) string {
	if r.md == nil {
		return wordwrap.String(content, r.width)
	}
	out, err := r.md.Render(content)
	if err != nil {
		return wordwrap.String(content, r.width)
	}
	return strings.Trim(out, "\n")
}

// Segments renders one assistant message body.
func (r *Renderer) Segments(segs []transcript.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		switch seg.Kind {
		case transcript.SegmentThought:
			parts = append(parts, r.thought(seg.Data))
		case transcript.SegmentToolRun:
			parts = append(parts, r.toolRun(seg))
		default:
			if strings.TrimSpace(seg.Data) == "" {
				continue
			}
			parts = append(parts, r.Markdown(seg.Data))
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) thought(data string) string {
	body := wordwrap.String(strings.TrimSpace(data), r.width-4)
	return ThoughtStyle.Render(SymbolThinking+" Thinking") + "\n" + ThoughtStyle.Render(indent.String(body, 2))
}

func (r *Renderer) toolRun(seg transcript.Segment) string {
	if !r.ShowTools {
		return ToolCallStyle.Render(SymbolArrow+" "+seg.ToolName) + SelectorDim.Render("  (/tools to expand)")
	}

	params := seg.Parameters
	if r.Redact != nil {
		params = r.Redact(params)
	}

	var b strings.Builder
	b.WriteString(ToolCallStyle.Render(SymbolExpanded + " " + seg.ToolName))
	b.WriteString("\n")
	b.WriteString(r.toolSection(SymbolTreeBranch, "parameters", params))
	b.WriteString("\n")
	b.WriteString(r.toolSection(SymbolTree, "response", seg.Response))
	return b.String()
}

func (r *Renderer) toolSection(branch, title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		body = "(empty)"
	}
	wrapped := wordwrap.String(body, r.width-6)
	return SelectorDim.Render(branch+" "+title) + "\n" + ToolResultStyle.Render(indent.String(wrapped, 4))
}

// Message renders one message with its role label. User text keeps its
// mentions highlighted; assistant messages without blocks fall back to
// their flat content.
func (r *Renderer) Message(m transcript.Message) string {
	if m.Role == transcript.RoleUser {
		return UserStyle.Render("You") + "\n" + HighlightMentions(wrapAtSpaces(m.Content, r.width))
	}

	var body string
	if m.HasBlocks() {
		body = r.Segments(transcript.Segments(m.Blocks))
	} else {
		body = r.Markdown(m.Content)
	}
	return AssistantStyle.Render("Agent") + "\n" + body
}

// Transcript renders a reconciled message list.
func (r *Renderer) Transcript(msgs []transcript.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, r.Message(m))
	}
	return strings.Join(parts, "\n\n")
}

// wrapAtSpaces wraps s only at whitespace. The default wrapper also breaks
// after hyphens, which would split mentions like @sales-orders.
func wrapAtSpaces(s string, width int) string {
	w := wordwrap.NewWriter(width)
	w.Breakpoints = nil
	_, _ = w.Write([]byte(s))
	_ = w.Close()
	return w.String()
}
