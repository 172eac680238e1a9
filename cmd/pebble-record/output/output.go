package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Color styles for terminal output
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")
	colorBorder  = lipgloss.Color("#4B5563")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	nullStyle    = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle  = cellStyle.Foreground(colorPrimary).Bold(true)
	borderStyle  = lipgloss.NewStyle().Foreground(colorBorder)
)

// Stdout is where the message helpers write.
var Stdout io.Writer = os.Stdout

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Fprint(Stdout, successStyle.Render("✓ "))
	fmt.Fprintf(Stdout, format+"\n", args...)
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Fprint(Stdout, warningStyle.Render("⚠ "))
	fmt.Fprintf(Stdout, format+"\n", args...)
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Fprint(Stdout, errorStyle.Render("✗ "))
	fmt.Fprintf(Stdout, format+"\n", args...)
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Fprint(Stdout, infoStyle.Render("ℹ "))
	fmt.Fprintf(Stdout, format+"\n", args...)
}

// Muted prints a muted message
func Muted(format string, args ...any) {
	fmt.Fprintln(Stdout, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints a section header
func Section(title string) {
	fmt.Fprintln(Stdout)
	fmt.Fprintln(Stdout, primaryStyle.Render(title))
	fmt.Fprintln(Stdout, mutedStyle.Render(strings.Repeat("═", lipgloss.Width(title))))
	fmt.Fprintln(Stdout)
}

// Flag renders a yes/no marker for boolean table cells.
func Flag(on bool) string {
	if on {
		return successStyle.Render("✓")
	}
	return mutedStyle.Render("•")
}
