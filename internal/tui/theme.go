package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme defines the colour palette. Colours are ANSI 256 codes.
type Theme struct {
	Name string

	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	LightOn     lipgloss.Color
	LightOff    lipgloss.Color
	Unreachable lipgloss.Color
	Pending     lipgloss.Color

	HeaderForeground lipgloss.Color
	Connected        lipgloss.Color
	Disconnected     lipgloss.Color
	Stale            lipgloss.Color

	StatusText  lipgloss.Color
	StatusError lipgloss.Color
	BorderColor lipgloss.Color
}

// DarkTheme is the palette for dark terminal backgrounds.
var DarkTheme = Theme{
	Name:               "dark",
	NormalText:         "252",
	FaintText:          "243",
	SelectedBackground: "237",
	SelectedForeground: "230",
	LightOn:            "221",
	LightOff:           "240",
	Unreachable:        "203",
	Pending:            "117",
	HeaderForeground:   "230",
	Connected:          "114",
	Disconnected:       "203",
	Stale:              "214",
	StatusText:         "250",
	StatusError:        "203",
	BorderColor:        "238",
}

// LightTheme is the palette for light terminal backgrounds.
var LightTheme = Theme{
	Name:               "light",
	NormalText:         "235",
	FaintText:          "245",
	SelectedBackground: "254",
	SelectedForeground: "232",
	LightOn:            "130",
	LightOff:           "248",
	Unreachable:        "160",
	Pending:            "25",
	HeaderForeground:   "232",
	Connected:          "28",
	Disconnected:       "160",
	Stale:              "166",
	StatusText:         "238",
	StatusError:        "160",
	BorderColor:        "250",
}

// ResolveTheme maps the configured selector to a palette. "auto" asks
// the terminal for its background colour; unknown values fall back to
// auto.
func ResolveTheme(selector string) Theme {
	return resolveTheme(selector, termenv.HasDarkBackground)
}

func resolveTheme(selector string, darkBackground func() bool) Theme {
	switch strings.ToLower(selector) {
	case "dark":
		return DarkTheme
	case "light":
		return LightTheme
	}
	if darkBackground() {
		return DarkTheme
	}
	return LightTheme
}
