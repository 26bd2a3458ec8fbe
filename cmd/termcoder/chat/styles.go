package chat

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	primary     = lipgloss.AdaptiveColor{Light: "#101F38", Dark: "#8BC34A"}
	muted       = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#7d8aa0"}
	border      = lipgloss.AdaptiveColor{Light: "#dce0e5", Dark: "#2a3850"}
	destructive = lipgloss.Color("#e53935")
	warning     = lipgloss.Color("#FFC107")
	info        = lipgloss.Color("#2196F3")
)

// Styles holds the lipgloss styles used by the chat view.
type Styles struct {
	Header    lipgloss.Style
	Thread    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Question  lipgloss.Style
	Error     lipgloss.Style
	Status    lipgloss.Style
	Spinner   lipgloss.Style
	Input     lipgloss.Style
	Help      lipgloss.Style
}

// DefaultStyles returns the standard styles.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1),
		Thread:    lipgloss.NewStyle().Foreground(muted),
		User:      lipgloss.NewStyle().Bold(true).Foreground(info),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(primary),
		Question:  lipgloss.NewStyle().Bold(true).Foreground(warning),
		Error:     lipgloss.NewStyle().Foreground(destructive),
		Status:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		Spinner:   lipgloss.NewStyle().Foreground(primary),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Help: lipgloss.NewStyle().Foreground(muted),
	}
}
