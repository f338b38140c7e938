package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase is what the user must type to confirm.
const ConfirmPhrase = "yes"

// RenderWarningBox renders a warning box listing the consequences of an
// operation.
func RenderWarningBox(title string, warnings []string, width int) string {
	width = clampWidth(width)
	lines := []string{
		"",
		lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
			Render(fmt.Sprintf("%s  WARNING  ─  %s", WarningMarker, title)),
		"",
	}
	for _, w := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render("• "+w))
	}
	lines = append(lines, "")

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

// Confirm shows the warning box on out and reads one line from in. It
// returns true only when the line is ConfirmPhrase.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string) bool {
	fmt.Fprintln(out, RenderWarningBox(title, warnings, GetTerminalWidth()))
	fmt.Fprintf(out, "Type '%s' to continue: ", ConfirmPhrase)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	return strings.TrimSpace(line) == ConfirmPhrase
}
