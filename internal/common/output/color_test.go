package output

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestColorOutputMatchesStatusType(t *testing.T) {
	ForceColor()
	defer NoColor()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	statusColorCodes := map[string]string{
		StatusStale:   "\x1b[33m", // Yellow
		StatusFresh:   "\x1b[32m", // Green
		StatusUpdate:  "\x1b[35",  // Magenta (bold follows)
		StatusUnknown: "\x1b[31m", // Red
	}

	statusGen := gen.OneConstOf(StatusStale, StatusFresh, StatusUpdate, StatusUnknown)

	properties.Property("FormatStatus contains correct ANSI code for status type", prop.ForAll(
		func(status string) bool {
			formatted := FormatStatus(status)
			return strings.Contains(formatted, statusColorCodes[status])
		},
		statusGen,
	))

	properties.Property("FormatStatus output contains the status text", prop.ForAll(
		func(status string) bool {
			return strings.Contains(FormatStatus(status), status)
		},
		statusGen,
	))

	properties.TestingRun(t)
}

func TestNoColorFlagDisablesANSICodes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	statusGen := gen.OneConstOf(StatusStale, StatusFresh, StatusUpdate, StatusUnknown, StatusExcluded)

	properties.Property("FormatStatus contains no ANSI codes when NoColor is set", prop.ForAll(
		func(status string) bool {
			NoColor()
			defer ForceColor()

			formatted := FormatStatus(status)
			return !strings.Contains(formatted, "\x1b[")
		},
		statusGen,
	))

	properties.Property("Sprintf contains no ANSI codes when NoColor is set", prop.ForAll(
		func(text string) bool {
			NoColor()
			defer ForceColor()

			colors := []*color.Color{Stale, Fresh, Update, Unknown, Success, Error, Info, Warning}
			for _, c := range colors {
				if strings.Contains(Sprintf(c, "%s", text), "\x1b[") {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
	))

	properties.Property("FormatEntry contains no ANSI codes when NoColor is set", prop.ForAll(
		func(name, id string) bool {
			NoColor()
			defer ForceColor()

			return !strings.Contains(FormatEntry(name, id), "\x1b[")
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestUnknownStatusFallsBackToReset(t *testing.T) {
	if StatusColor("something-else") == nil {
		t.Error("StatusColor should never return nil")
	}
}
