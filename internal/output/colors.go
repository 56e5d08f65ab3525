// Package output renders interval reports for the terminal and for
// machine consumption.
package output

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for report elements.
type ColorScheme struct {
	Header    *color.Color
	Label     *color.Color
	Value     *color.Color
	Corrected *color.Color
	Pause     *color.Color
	Dim       *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:    color.New(color.FgCyan, color.Bold),
		Label:     color.New(color.FgYellow),
		Value:     color.New(color.FgWhite),
		Corrected: color.New(color.FgMagenta, color.Bold),
		Pause:     color.New(color.FgRed, color.Bold),
		Dim:       color.New(color.Faint),
	}
}

// NoColorScheme returns a scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.Header.DisableColor()
	scheme.Label.DisableColor()
	scheme.Value.DisableColor()
	scheme.Corrected.DisableColor()
	scheme.Pause.DisableColor()
	scheme.Dim.DisableColor()
	return scheme
}

// SchemeFor picks a scheme based on the noColor flag and whether stdout
// is a terminal.
func SchemeFor(noColor bool) *ColorScheme {
	if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
		return NoColorScheme()
	}
	return DefaultColorScheme()
}
