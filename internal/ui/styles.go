package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary   = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("35")  // Green
	ColorWarning   = lipgloss.Color("214") // Gold/yellow
	ColorError     = lipgloss.Color("196") // Red
	ColorDim       = lipgloss.Color("241") // Gray
	ColorAccent    = lipgloss.Color("39")  // Blue
	ColorHighlight = lipgloss.Color("212") // Light pink
	ColorMention   = lipgloss.Color("178") // Amber
)

const (
	SymbolPrompt     = "❯"
	SymbolBullet     = "●"
	SymbolTree       = "└"
	SymbolArrow      = "▸"
	SymbolExpanded   = "▾"
	SymbolCheck      = "✓"
	SymbolCross      = "✗"
	SymbolThinking   = "◐"
	SymbolTreeBranch = "├"
	SymbolTreePipe   = "│"
)

var (
	PromptStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	UserStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ThoughtStyle = lipgloss.NewStyle().
			Foreground(ColorDim).
			Italic(true)

	ToolCallStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ToolResultStyle = lipgloss.NewStyle().
			Foreground(ColorDim)

	MentionStyle = lipgloss.NewStyle().
			Foreground(ColorMention).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	SystemStyle = lipgloss.NewStyle().
			Foreground(ColorDim)

	SelectorCursor = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	SelectorItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	SelectorDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	SelectorActive = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true)

	PopupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMention).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorDim)
)
