package device

import "fmt"

// Colour temperature presets in mireds, matching the white-spectrum range of
// Trådfri bulbs.
const (
	ColorTempCold    = 250
	ColorTempNeutral = 370
	ColorTempWarm    = 454

	// MinColorTemp and MaxColorTemp bound the device-defined range.
	MinColorTemp = ColorTempCold
	MaxColorTemp = ColorTempWarm
)

// Attributes is the controllable state of a light.
type Attributes struct {
	On bool `json:"on"`

	// Brightness is a percentage, 0-100.
	Brightness int `json:"brightness"`

	// ColorTemp is in mireds; zero means the light reports none.
	ColorTemp int `json:"color_temp,omitempty"`
}

// Apply returns a copy of a with the fields set in d overwritten.
func (a Attributes) Apply(d Delta) Attributes {
	if d.On != nil {
		a.On = *d.On
	}
	if d.Brightness != nil {
		a.Brightness = *d.Brightness
	}
	if d.ColorTemp != nil {
		a.ColorTemp = *d.ColorTemp
	}
	return a
}

// Delta is a partial attribute write. Nil fields are left untouched.
type Delta struct {
	On         *bool `json:"on,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	ColorTemp  *int  `json:"color_temp,omitempty"`
}

// IsEmpty reports whether d changes nothing.
func (d Delta) IsEmpty() bool {
	return d.On == nil && d.Brightness == nil && d.ColorTemp == nil
}

// Clone returns a copy of d that shares no pointers with it.
func (d Delta) Clone() Delta {
	var c Delta
	if d.On != nil {
		c.On = Bool(*d.On)
	}
	if d.Brightness != nil {
		c.Brightness = Int(*d.Brightness)
	}
	if d.ColorTemp != nil {
		c.ColorTemp = Int(*d.ColorTemp)
	}
	return c
}

// String renders the delta for logs and the command journal.
func (d Delta) String() string {
	s := ""
	if d.On != nil {
		s += fmt.Sprintf("on=%t ", *d.On)
	}
	if d.Brightness != nil {
		s += fmt.Sprintf("brightness=%d%% ", *d.Brightness)
	}
	if d.ColorTemp != nil {
		s += fmt.Sprintf("color_temp=%d ", *d.ColorTemp)
	}
	if s == "" {
		return "{}"
	}
	return s[:len(s)-1]
}

// Bool returns a pointer to v, for building deltas.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for building deltas.
func Int(v int) *int { return &v }

// Light is one entry of the store as seen by readers.
type Light struct {
	// ID is the gateway-assigned instance id; stable across restarts.
	ID   int    `json:"id"`
	Name string `json:"name"`

	Attributes

	// Reachable is false when the gateway reports the bulb offline or when
	// a command exhausted its retries.
	Reachable bool `json:"reachable"`

	// Pending is true while an optimistic write awaits the gateway.
	Pending bool `json:"pending"`

	// Generation is incremented on every accepted write.
	Generation uint64 `json:"generation"`
}

// Observed is a light as reported by the gateway during a refresh.
type Observed struct {
	ID        int
	Name      string
	Reachable bool
	Attributes
}

// ColorTempLabel names the preset nearest to mireds: cold, neutral or warm.
// It returns "" when the light reports no colour temperature.
func ColorTempLabel(mireds int) string {
	if mireds == 0 {
		return ""
	}
	switch {
	case mireds < (ColorTempCold+ColorTempNeutral)/2:
		return "cold"
	case mireds < (ColorTempNeutral+ColorTempWarm)/2:
		return "neutral"
	default:
		return "warm"
	}
}

// StepColorTemp moves to the next preset towards warm (warmer) or cold.
// It stays at the end of the range.
func StepColorTemp(mireds int, warmer bool) int {
	presets := []int{ColorTempCold, ColorTempNeutral, ColorTempWarm}
	if warmer {
		for _, p := range presets {
			if p > mireds {
				return p
			}
		}
		return ColorTempWarm
	}
	for i := len(presets) - 1; i >= 0; i-- {
		if presets[i] < mireds {
			return presets[i]
		}
	}
	return ColorTempCold
}

// ClampBrightness limits a percentage to 0-100.
func ClampBrightness(pct int) int {
	return min(max(pct, 0), 100)
}

// ClampColorTemp limits mireds to the device range.
func ClampColorTemp(mireds int) int {
	return min(max(mireds, MinColorTemp), MaxColorTemp)
}
