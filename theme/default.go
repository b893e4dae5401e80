package theme

import (
	"github.com/pterm/pterm"
)

// Theme holds the terminal styling used by the styled logger and the CLI tables
type Theme struct {
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style
	Muted *pterm.Style

	Success *pterm.Style
	Failure *pterm.Style

	// Inline highlight colours
	Counts   pterm.Color
	Provider pterm.Color
	Model    pterm.Color
	Numbers  pterm.Color
	Trust    pterm.Color
	NoTrust  pterm.Color
}

func Default() *Theme {
	return &Theme{
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Muted: pterm.NewStyle(pterm.FgGray),

		Success: pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Failure: pterm.NewStyle(pterm.FgRed, pterm.Bold),

		Counts:   pterm.FgLightYellow,
		Provider: pterm.FgCyan,
		Model:    pterm.FgLightMagenta,
		Numbers:  pterm.FgLightBlue,
		Trust:    pterm.FgGreen,
		NoTrust:  pterm.FgYellow,
	}
}

// Dark swaps to the light variants, which read better on dark backgrounds
func Dark() *Theme {
	t := Default()
	t.Info = pterm.NewStyle(pterm.FgLightGreen)
	t.Warn = pterm.NewStyle(pterm.FgLightYellow, pterm.Bold)
	t.Error = pterm.NewStyle(pterm.FgLightRed, pterm.Bold)
	t.Provider = pterm.FgLightCyan
	t.Trust = pterm.FgLightGreen
	t.NoTrust = pterm.FgLightYellow
	return t
}

func Light() *Theme {
	t := Default()
	t.Info = pterm.NewStyle(pterm.FgBlack)
	t.Counts = pterm.FgYellow
	t.Provider = pterm.FgBlue
	t.Model = pterm.FgMagenta
	t.Numbers = pterm.FgBlue
	return t
}

func GetTheme(name string) *Theme {
	switch name {
	case "dark":
		return Dark()
	case "light":
		return Light()
	default:
		return Default()
	}
}

// ColourSplash colours the startup banner
func ColourSplash(message ...any) string {
	return pterm.LightCyan(message...)
}

func ColourVersion(message ...any) string {
	return pterm.LightYellow(message...)
}

func StyleUrl(message ...any) string {
	return pterm.LightBlue(message...)
}

// Hyperlink creates an OSC 8 hyperlink for terminals that support it
func Hyperlink(uri string, text string) string {
	return "\x1b]8;;" + uri + "\x07" + text + "\x1b]8;;\x07" + "\u001b[0m"
}
