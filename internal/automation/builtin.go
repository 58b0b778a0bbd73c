package automation

import "github.com/frostlux/frostlux/internal/device"

// preset builds a template that turns lights on at pct brightness and the
// given colour temperature.
func preset(pct, mireds int) device.Delta {
	return device.Delta{
		On:         device.Bool(true),
		Brightness: device.Int(pct),
		ColorTemp:  device.Int(mireds),
	}
}

// Builtin returns the shipped scene vocabulary, in display order.
func Builtin() []SceneDefinition {
	scenes := []SceneDefinition{
		{
			Key: "on", Name: "All on", Aliases: []string{"allon", "all-on", "alla på"}, Hotkey: "a",
			Template: preset(100, device.ColorTempCold),
		},
		{
			Key: "off", Name: "All off", Aliases: []string{"alloff", "all-off", "alla av"}, Hotkey: "o",
			Template: device.Delta{On: device.Bool(false)},
		},
		{
			Key: "movie", Name: "Movie", Aliases: []string{"film"}, Hotkey: "m",
			Template: preset(12, device.ColorTempNeutral),
		},
		{
			Key: "bright", Name: "Bright", Aliases: []string{"ljus"}, Hotkey: "b",
			Template: preset(100, device.ColorTempCold),
		},
		{
			Key: "cozy", Name: "Cozy", Aliases: []string{"mysig", "mys"}, Hotkey: "c",
			Template: preset(50, device.ColorTempNeutral),
		},
		{
			Key: "night", Name: "Night", Aliases: []string{"natt"}, Hotkey: "n",
			Template: preset(6, device.ColorTempNeutral),
		},
		{
			Key: "evening", Name: "Evening", Aliases: []string{"kväll", "kvall"}, Hotkey: "e",
			Template: preset(59, device.ColorTempNeutral),
		},
		{
			Key: "reading", Name: "Reading", Aliases: []string{"läsning", "lasning"}, Hotkey: "r",
			Template: preset(79, device.ColorTempCold),
		},
		{
			Key: "morning", Name: "Good morning", Aliases: []string{"good-morning", "morgon", "god morgon"}, Hotkey: "g",
			Template: preset(71, device.ColorTempCold),
		},
	}
	for i := range scenes {
		scenes[i].Builtin = true
	}
	return scenes
}
