package ui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/truncate"
	"github.com/yolodolo42/dagent/internal/mention"
)

// popupRows caps the number of candidates shown at once.
const popupRows = 8

var levelTitles = map[mention.Level]string{
	mention.Connection: "Connections",
	mention.Database:   "Databases",
	mention.Schema:     "Schemas",
	mention.Table:      "Tables",
}

// MentionPopup renders the candidate list of an open mention session.
// spin is the current spinner frame shown while candidates load. It
// returns "" for a closed session.
func MentionPopup(s *mention.Session, width int, spin string) string {
	if s == nil || !s.IsOpen() {
		return ""
	}
	if width < 24 {
		width = 24
	}
	inner := width - 4

	var b strings.Builder
	title := levelTitles[s.Level()]
	if path := s.Path(); len(path) > 0 {
		title += "  " + SelectorDim.Render("@"+strings.Join(path, "/"))
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	switch {
	case s.Loading():
		b.WriteString(fmt.Sprintf("%s Loading...", spin))
	case s.Err() != "":
		b.WriteString(ErrorStyle.Render(SymbolCross + " " + truncate.StringWithTail(s.Err(), uint(inner-2), "...")))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("ctrl+r retry • esc close"))
	case len(s.Candidates()) == 0:
		b.WriteString(SelectorDim.Render("No results"))
	default:
		b.WriteString(candidateRows(s, inner))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("↑/↓ navigate • enter/tab select • esc close"))
	}

	return PopupStyle.Width(width - 2).Render(b.String())
}

// candidateRows lists a window of candidates that keeps the highlighted
// one visible.
func candidateRows(s *mention.Session, width int) string {
	items := s.Candidates()
	hi := s.Highlighted()

	start := 0
	if hi >= popupRows {
		start = hi - popupRows + 1
	}
	end := min(len(items), start+popupRows)

	rows := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		label := items[i].Label
		if label == "" {
			label = items[i].ID
		}
		label = truncate.StringWithTail(label, uint(width-2), "...")
		if i == hi {
			rows = append(rows, SelectorCursor.Render(SymbolArrow)+" "+SelectorActive.Render(label))
		} else {
			rows = append(rows, "  "+SelectorItemStyle.Render(label))
		}
	}
	if end < len(items) {
		rows = append(rows, SelectorDim.Render(fmt.Sprintf("  … %d more", len(items)-end)))
	}
	return strings.Join(rows, "\n")
}

// HighlightMentions styles every @mention token of s.
func HighlightMentions(s string) string {
	var b strings.Builder
	for _, tok := range mention.Tokenize(s) {
		if tok.Kind == mention.Mention {
			b.WriteString(MentionStyle.Render(tok.Text))
			continue
		}
		b.WriteString(tok.Text)
	}
	return b.String()
}
