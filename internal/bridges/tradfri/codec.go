package tradfri

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/frostlux/frostlux/internal/device"
)

// Resource paths on the gateway.
const (
	PathDevices     = "15001"
	PathGatewayInfo = "15011/15012"
)

// devicePath returns the resource path of one device.
func devicePath(id int) string {
	return PathDevices + "/" + strconv.Itoa(id)
}

// maxWireBrightness is the top of the gateway's 0-254 dimmer range.
const maxWireBrightness = 254

// Colour hex values the gateway reports for its white-spectrum presets.
var hexToMireds = map[string]int{
	"f5faf6": device.ColorTempCold,
	"f1e0b5": device.ColorTempNeutral,
	"efd275": device.ColorTempWarm,
}

// deviceObject is the JSON body of GET 15001/{id}.
type deviceObject struct {
	Name      string        `json:"9001"`
	ID        int           `json:"9003"`
	Reachable *int          `json:"9019"`
	Lights    []lightObject `json:"3311"`
}

// lightObject is one entry of the 3311 light-control list.
type lightObject struct {
	On         *int   `json:"5850,omitempty"`
	Brightness *int   `json:"5851,omitempty"`
	ColorTemp  *int   `json:"5711,omitempty"`
	ColorHex   string `json:"5706,omitempty"`
}

// updateObject is the JSON body of PUT 15001/{id}.
type updateObject struct {
	Lights []lightObject `json:"3311"`
}

// PercentToWire converts a 0-100 brightness to the gateway's 0-254 range.
func PercentToWire(pct int) int {
	return (device.ClampBrightness(pct)*maxWireBrightness + 50) / 100
}

// WireToPercent converts a 0-254 brightness to 0-100.
func WireToPercent(v int) int {
	v = min(max(v, 0), maxWireBrightness)
	return (v*100 + maxWireBrightness/2) / maxWireBrightness
}

// decodeDeviceIDs parses the body of GET 15001.
func decodeDeviceIDs(payload []byte) ([]int, error) {
	var ids []int
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, fmt.Errorf("%w: device list: %w", ErrDecode, err)
	}
	return ids, nil
}

// decodeLight parses the body of GET 15001/{id}.
//
// Returns:
//   - device.Observed: The light's state
//   - bool: false if the device is not a light (remote, sensor, ...)
//   - error: ErrDecode on malformed JSON
func decodeLight(id int, payload []byte) (device.Observed, bool, error) {
	var obj deviceObject
	if err := json.Unmarshal(payload, &obj); err != nil {
		return device.Observed{}, false, fmt.Errorf("%w: device %d: %w", ErrDecode, id, err)
	}
	if len(obj.Lights) == 0 {
		return device.Observed{}, false, nil
	}

	l := obj.Lights[0]
	observed := device.Observed{
		ID:        id,
		Name:      obj.Name,
		Reachable: obj.Reachable == nil || *obj.Reachable != 0,
	}
	if l.On != nil {
		observed.On = *l.On != 0
	}
	if l.Brightness != nil {
		observed.Brightness = WireToPercent(*l.Brightness)
	}
	switch {
	case l.ColorTemp != nil:
		observed.ColorTemp = *l.ColorTemp
	case l.ColorHex != "":
		observed.ColorTemp = hexToMireds[l.ColorHex]
	}
	if observed.Name == "" {
		observed.Name = fmt.Sprintf("Light %d", id)
	}
	return observed, true, nil
}

// encodeDelta builds the body of PUT 15001/{id}.
func encodeDelta(d device.Delta) ([]byte, error) {
	var l lightObject
	if d.On != nil {
		on := 0
		if *d.On {
			on = 1
		}
		l.On = &on
	}
	if d.Brightness != nil {
		b := PercentToWire(*d.Brightness)
		l.Brightness = &b
	}
	if d.ColorTemp != nil {
		ct := device.ClampColorTemp(*d.ColorTemp)
		l.ColorTemp = &ct
	}

	payload, err := json.Marshal(updateObject{Lights: []lightObject{l}})
	if err != nil {
		return nil, fmt.Errorf("encoding light update: %w", err)
	}
	return payload, nil
}
