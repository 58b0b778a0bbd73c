package mqtt

import (
	"strconv"
	"strings"
)

// DefaultPrefix is used when no topic prefix is configured.
const DefaultPrefix = "frostlux"

// Topics builds the topic tree under one prefix.
//
//	<prefix>/status               retained online/offline status (LWT)
//	<prefix>/status/gateway       retained gateway connection state
//	<prefix>/light/<id>/state     retained light state
//	<prefix>/light/<id>/set       remote light commands
//	<prefix>/scene/set            remote scene activation
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, trimming stray slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) join(parts ...string) string {
	return t.Prefix + "/" + strings.Join(parts, "/")
}

// Status returns the connection status topic.
func (t Topics) Status() string {
	return t.join("status")
}

// Gateway returns the gateway connection state topic.
func (t Topics) Gateway() string {
	return t.join("status", "gateway")
}

// LightState returns the retained state topic for one light.
func (t Topics) LightState(id int) string {
	return t.join("light", strconv.Itoa(id), "state")
}

// LightSet returns the command topic for one light.
func (t Topics) LightSet(id int) string {
	return t.join("light", strconv.Itoa(id), "set")
}

// AllLightSets matches every light command topic.
func (t Topics) AllLightSets() string {
	return t.join("light", "+", "set")
}

// SceneSet returns the scene activation topic.
func (t Topics) SceneSet() string {
	return t.join("scene", "set")
}

// LightIDFromTopic extracts the light id from a state or set topic.
// It returns false when topic is not under this prefix's light tree.
func (t Topics) LightIDFromTopic(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/light/")
	if !ok {
		return 0, false
	}
	idPart, _, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
