package setup

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor = lipgloss.Color("205") // Pink/magenta
	successColor = lipgloss.Color("35")  // Green
	dimColor     = lipgloss.Color("241") // Gray
	borderColor  = lipgloss.Color("62")  // Purple

	// Box style for welcome/complete screens
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	// Title style
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Subtitle/description
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	// Success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// Dim text
	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	// Error text
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	// Help text at bottom
	HelpStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	// Spinner style
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)
