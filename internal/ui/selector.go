package ui

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"
)

// SelectorItem is one choice in a Selector.
type SelectorItem struct {
	ID          string
	Label       string
	Description string
	// Current marks the item the cursor starts on, e.g. the last used
	// sign-in method.
	Current bool
}

type selectorState int

const (
	selectorChoosing selectorState = iota
	selectorChosen
	selectorCancelled
)

// Selector is a single-choice keyboard list. Up/down wrap around, digits
// pick an item directly, enter chooses and esc cancels.
type Selector struct {
	title  string
	items  []SelectorItem
	cursor int
	state  selectorState
	width  int
}

// NewSelector creates a selector with the cursor on the current item.
func NewSelector(title string, items []SelectorItem) Selector {
	s := Selector{title: title, items: items, width: 80}
	s.Reset()
	return s
}

// Reset reopens the selector on its current item.
func (s *Selector) Reset() {
	s.state = selectorChoosing
	s.cursor = 0
	for i, item := range s.items {
		if item.Current {
			s.cursor = i
			break
		}
	}
}

// SetWidth sets the width descriptions are truncated to.
func (s *Selector) SetWidth(w int) {
	s.width = w
}

// Active reports whether the selector is still waiting for a choice.
func (s *Selector) Active() bool {
	return s.state == selectorChoosing
}

// Selected returns the chosen item ID, or "" until a choice is made.
func (s *Selector) Selected() string {
	if s.state != selectorChosen || s.cursor >= len(s.items) {
		return ""
	}
	return s.items[s.cursor].ID
}

// Cancelled reports whether the selector was dismissed with esc.
func (s *Selector) Cancelled() bool {
	return s.state == selectorCancelled
}

// Update handles selector input.
func (s *Selector) Update(msg tea.Msg) (*Selector, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || !s.Active() || len(s.items) == 0 {
		return s, nil
	}

	n := len(s.items)
	switch k := key.String(); k {
	case "up", "k", "shift+tab":
		s.cursor = (s.cursor - 1 + n) % n
	case "down", "j", "tab":
		s.cursor = (s.cursor + 1) % n
	case "enter":
		s.state = selectorChosen
	case "esc", "q":
		s.state = selectorCancelled
	default:
		if i, err := strconv.Atoi(k); err == nil && i >= 1 && i <= n {
			s.cursor = i - 1
			s.state = selectorChosen
		}
	}
	return s, nil
}

// View renders the list while the selector is active.
func (s *Selector) View() string {
	if !s.Active() {
		return ""
	}

	var b strings.Builder
	b.WriteString(HelpStyle.Render(s.title))
	b.WriteString("\n\n")

	for i, item := range s.items {
		label := item.Label
		if label == "" {
			label = item.ID
		}
		row := strconv.Itoa(i+1) + ". " + label

		if i == s.cursor {
			b.WriteString(SelectorCursor.Render(SymbolArrow) + " " + SelectorActive.Render(padRight(row, 28)))
		} else {
			b.WriteString("  " + SelectorItemStyle.Render(padRight(row, 28)))
		}

		desc := item.Description
		if item.Current {
			desc = strings.TrimSpace(desc + " (last used)")
		}
		if room := s.width - 32; desc != "" && room > 4 {
			b.WriteString(SelectorDim.Render(truncate.StringWithTail(desc, uint(room), "…")))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ move • 1-" + strconv.Itoa(len(s.items)) + " pick • enter sign in • esc back"))
	return b.String()
}

func padRight(s string, n int) string {
	if pad := n - len([]rune(s)); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}
