package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/apkdrop/internal/version"
)

const (
	AppName = "APKDROP"

	// InstalledMarker tags releases installed during this session.
	InstalledMarker = "✓ installed"

	MinTerminalWidth = 60
	// bodyPanelLines caps the release notes shown beside the list.
	bodyPanelLines = 12
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF0000") // Red

	TextColor      = lipgloss.Color("#FFFFFF")
	SubtleColor    = lipgloss.Color("#626262")
	BorderColor    = PrimaryColor
	HighlightColor = SecondaryColor
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	ListItemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(TextColor)

	SelectedListItemStyle = lipgloss.NewStyle().
				Foreground(HighlightColor).
				Bold(true)

	DimItemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(SubtleColor)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	DeviceBarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.Border{Top: "─"}).
			BorderForeground(SubtleColor).
			MarginTop(1)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	SuccessBoxStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SecondaryColor).
			Padding(1, 2)

	ErrorBoxStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ErrorColor).
			Padding(1, 2)

	DeviceTextStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Border(lipgloss.NormalBorder()).
			BorderForeground(SubtleColor).
			Padding(0, 1)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)
)

// RenderTitle renders a title with consistent styling
func RenderTitle(text string) string {
	return TitleStyle.Render(text)
}

// RenderListItem renders a list row with a selection marker.
func RenderListItem(text string, selected bool) string {
	if selected {
		return SelectedListItemStyle.Render("→ " + text)
	}
	return ListItemStyle.Render(text)
}

func buildHeader(repository string) string {
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(AppName + " v" + version.Version)
	right := lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(repository)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// RenderApplicationContainer wraps a screen in the shared frame: header with
// the repository, the content, and a footer with key help. Every screen goes
// through it.
func RenderApplicationContainer(repository, content, footer string, width, height int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if height < 10 {
		height = 10
	}

	header := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(width-4).
		Padding(0, 1).
		Render(buildHeader(repository))

	foot := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Foreground(SubtleColor).
		Width(width-4).
		Padding(0, 1).
		Render(footer)

	body := lipgloss.NewStyle().
		Width(width-4).
		Padding(1, 1).
		Render(content)

	// Pin the footer to the bottom of the frame.
	gap := height - 2 - lipgloss.Height(header) - lipgloss.Height(body) - lipgloss.Height(foot)
	parts := []string{header, body}
	if gap > 0 {
		parts = append(parts, lipgloss.NewStyle().Height(gap).Render(""))
	}
	parts = append(parts, foot)

	framed := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(width - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))

	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, framed)
}
