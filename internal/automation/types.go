package automation

import (
	"strings"

	"github.com/frostlux/frostlux/internal/device"
)

// SceneDefinition is a named template of light attributes.
type SceneDefinition struct {
	// Key is the canonical lowercase identifier, e.g. "movie".
	Key string `json:"key"`

	// Name is the display name.
	Name string `json:"name"`

	// Aliases are alternative names, e.g. Swedish translations.
	Aliases []string `json:"aliases,omitempty"`

	// Hotkey is the single key that applies the scene in the terminal UI.
	Hotkey string `json:"hotkey,omitempty"`

	// Template applies to every light.
	Template device.Delta `json:"template"`

	// PerLight overrides Template fields for lights with the given name
	// (case-insensitive).
	PerLight map[string]device.Delta `json:"per_light,omitempty"`

	// Builtin marks the shipped vocabulary.
	Builtin bool `json:"builtin"`

	order int
}

// DeepCopy returns a copy that shares no mutable state with s.
func (s SceneDefinition) DeepCopy() SceneDefinition {
	c := s
	c.Aliases = append([]string(nil), s.Aliases...)
	c.Template = s.Template.Clone()
	if s.PerLight != nil {
		c.PerLight = make(map[string]device.Delta, len(s.PerLight))
		for name, d := range s.PerLight {
			c.PerLight[name] = d.Clone()
		}
	}
	return c
}

// DeltaFor returns the attributes the scene sets on a light called name.
// Per-light fields win over the template.
func (s SceneDefinition) DeltaFor(name string) device.Delta {
	d := s.Template.Clone()
	for k, override := range s.PerLight {
		if !strings.EqualFold(k, name) {
			continue
		}
		if override.On != nil {
			d.On = override.On
		}
		if override.Brightness != nil {
			d.Brightness = override.Brightness
		}
		if override.ColorTemp != nil {
			d.ColorTemp = override.ColorTemp
		}
	}
	return d.Clone()
}

// Names returns the key, display name and aliases.
func (s SceneDefinition) Names() []string {
	names := make([]string, 0, 2+len(s.Aliases))
	names = append(names, s.Key)
	if s.Name != "" {
		names = append(names, s.Name)
	}
	return append(names, s.Aliases...)
}

// Target is one light's share of a scene application.
type Target struct {
	LightID int          `json:"light_id"`
	Name    string       `json:"name"`
	Delta   device.Delta `json:"delta"`
}

// Plan is the result of resolving a scene against the current lights.
type Plan struct {
	Scene   SceneDefinition `json:"scene"`
	Targets []Target        `json:"targets"`

	// Excluded lists the names of lights skipped by an exclusion layer.
	Excluded []string `json:"excluded,omitempty"`
}
