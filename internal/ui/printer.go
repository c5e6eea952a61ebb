package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one labelled value in a header or result box. Details keep the
// order they are given in.
type Detail struct {
	Key   string
	Value string
}

// Printer writes styled output for the non-interactive commands.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// WithWidth overrides the detected terminal width.
func (p *Printer) WithWidth(width int) *Printer {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	p.width = width
	return p
}

// Width returns the width used for boxes.
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command banner.
func (p *Printer) PrintHeader(title, command string, details ...Detail) {
	p.Println(RenderHeader(title, command, details, p.width))
}

// PrintSuccess prints a success result box.
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box with a hint below the message.
func (p *Printer) PrintError(title string, err error, hint string) {
	p.Println(RenderErrorBox(title, err, hint, p.width))
}

func renderDetails(details []Detail) []string {
	lines := make([]string, 0, len(details))
	for _, d := range details {
		lines = append(lines, ResultKeyStyle.Render(d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	return lines
}

// RenderHeader renders a command banner with optional details.
func RenderHeader(title, command string, details []Detail, width int) string {
	lines := []string{
		HeaderTitleStyle.Render(strings.ToUpper(title)),
		HeaderCommandStyle.Render(command),
	}
	if len(details) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", max(width-4, 10)))
		lines = append(lines, divider)
		for _, l := range renderDetails(details) {
			lines = append(lines, " "+l)
		}
	}
	return headerBox(width).Render(strings.Join(lines, "\n"))
}

// RenderSuccessBox renders a success result box.
func RenderSuccessBox(title string, details []Detail, width int) string {
	lines := []string{SuccessTitleStyle.Render(SuccessMarker + "  " + title)}
	if len(details) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderDetails(details)...)
	}
	return successBox(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box.
func RenderErrorBox(title string, err error, hint string, width int) string {
	lines := []string{ErrorTitleStyle.Render(FailureMarker + "  " + title)}
	if err != nil {
		lines = append(lines, "", ErrorMessageStyle.Render("Error: "+err.Error()))
	}
	if hint != "" {
		lines = append(lines, "", HintStyle.Render(hint))
	}
	return errorBox(width).Render(strings.Join(lines, "\n"))
}
