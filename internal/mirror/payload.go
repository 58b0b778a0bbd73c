package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/device"
)

// ErrInvalidPayload is returned for set messages that cannot be parsed.
var ErrInvalidPayload = errors.New("mirror: invalid payload")

// ErrStopped is returned for commands that arrive after Run has returned
// or while it is shutting down.
var ErrStopped = errors.New("mirror: stopped")

// LightState is the retained document for one light.
type LightState struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"`
	ColorTemp  int    `json:"color_temp,omitempty"`
	Tone       string `json:"tone,omitempty"`
	Reachable  bool   `json:"reachable"`
	Pending    bool   `json:"pending"`
}

func lightState(l device.Light) LightState {
	return LightState{
		ID:         l.ID,
		Name:       l.Name,
		On:         l.On,
		Brightness: l.Brightness,
		ColorTemp:  l.ColorTemp,
		Tone:       device.ColorTempLabel(l.ColorTemp),
		Reachable:  l.Reachable,
		Pending:    l.Pending,
	}
}

// GatewayState is the retained document for the gateway connection.
type GatewayState struct {
	State   string `json:"state"`
	Attempt int    `json:"attempt,omitempty"`
	RetryAt string `json:"retry_at,omitempty"`
	Error   string `json:"error,omitempty"`
}

func gatewayState(st tradfri.ConnectionState) GatewayState {
	gs := GatewayState{State: st.Phase.String(), Attempt: st.Attempt}
	if !st.Deadline.IsZero() {
		gs.RetryAt = st.Deadline.UTC().Format(time.RFC3339)
	}
	if st.Err != nil {
		gs.Error = st.Err.Error()
	}
	return gs
}

// setRequest is a parsed light set message.
type setRequest struct {
	toggle bool
	delta  device.Delta
}

// parseSet accepts ON, OFF and TOGGLE as plain text, or a JSON object
// with any of on, brightness and color_temp.
func parseSet(payload []byte) (setRequest, error) {
	text := strings.TrimSpace(string(payload))
	switch strings.ToUpper(text) {
	case "ON":
		return setRequest{delta: device.Delta{On: device.Bool(true)}}, nil
	case "OFF":
		return setRequest{delta: device.Delta{On: device.Bool(false)}}, nil
	case "TOGGLE":
		return setRequest{toggle: true}, nil
	}

	var delta device.Delta
	if err := json.Unmarshal([]byte(text), &delta); err != nil {
		return setRequest{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if delta.IsEmpty() {
		return setRequest{}, fmt.Errorf("%w: no attributes", ErrInvalidPayload)
	}
	if b := delta.Brightness; b != nil && (*b < 0 || *b > 100) {
		return setRequest{}, fmt.Errorf("%w: brightness %d out of range 0-100", ErrInvalidPayload, *b)
	}
	if ct := delta.ColorTemp; ct != nil && (*ct < device.MinColorTemp || *ct > device.MaxColorTemp) {
		return setRequest{}, fmt.Errorf("%w: color_temp %d out of range %d-%d",
			ErrInvalidPayload, *ct, device.MinColorTemp, device.MaxColorTemp)
	}
	return setRequest{delta: delta}, nil
}

// parseScene accepts a bare scene name or {"scene": "<name>"}.
func parseScene(payload []byte) (string, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var req struct {
			Scene string `json:"scene"`
		}
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		text = strings.TrimSpace(req.Scene)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty scene name", ErrInvalidPayload)
	}
	return text, nil
}
