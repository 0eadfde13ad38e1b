package output

import (
	"os"

	"github.com/fatih/color"
)

var (
	// Tracking status colors
	Stale    = color.New(color.FgYellow)
	Fresh    = color.New(color.FgGreen)
	Update   = color.New(color.FgMagenta, color.Bold)
	Unknown  = color.New(color.FgRed)
	Excluded = color.New(color.Faint)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header = color.New(color.FgWhite, color.Bold)
	Entry  = color.New(color.FgBlue, color.Bold)
)

// Tracking status names understood by StatusColor
const (
	StatusStale    = "Stale"
	StatusFresh    = "Fresh"
	StatusUpdate   = "Update"
	StatusUnknown  = "Unknown"
	StatusExcluded = "Excluded"
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// StatusColor returns the appropriate color for a tracking status
func StatusColor(status string) *color.Color {
	switch status {
	case StatusStale:
		return Stale
	case StatusFresh:
		return Fresh
	case StatusUpdate:
		return Update
	case StatusUnknown:
		return Unknown
	case StatusExcluded:
		return Excluded
	default:
		return color.New(color.Reset)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatStatus formats a status string with appropriate color
func FormatStatus(status string) string {
	c := StatusColor(status)
	return c.Sprintf("[%s]", status)
}

// FormatEntry formats an entry name, with its id dimmed when present
func FormatEntry(name, id string) string {
	if id == "" {
		return Entry.Sprint(name)
	}
	return Entry.Sprint(name) + " " + Dim.Sprintf("(%s)", id)
}
