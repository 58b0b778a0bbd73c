package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the light controls. Scene hot-keys come from the scene
// registry and are not listed here.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Toggle       key.Binding
	BrighterStep key.Binding // +10%
	DimmerStep   key.Binding // -10%
	BrighterJump key.Binding // +25%
	DimmerJump   key.Binding // -25%
	Warmer       key.Binding
	Colder       key.Binding

	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// Brightness step sizes in percentage points.
const (
	brightnessStep = 10
	brightnessJump = 25
)

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "enter"),
		key.WithHelp("space", "on/off"),
	),
	BrighterStep: key.NewBinding(
		key.WithKeys("l", "right"),
		key.WithHelp("l/→", "+10%"),
	),
	DimmerStep: key.NewBinding(
		key.WithKeys("h", "left"),
		key.WithHelp("h/←", "-10%"),
	),
	BrighterJump: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "+25%"),
	),
	DimmerJump: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "-25%"),
	),
	Warmer: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "warmer"),
	),
	Colder: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "colder"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "refresh"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.DimmerStep, k.BrighterStep, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.DimmerStep, k.BrighterStep, k.DimmerJump, k.BrighterJump},
		{k.Warmer, k.Colder},
		{k.Refresh, k.Help, k.Quit},
	}
}
