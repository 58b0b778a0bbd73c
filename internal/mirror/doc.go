// Package mirror reflects the light store onto the LAN MQTT broker.
//
// Light state is published retained to <prefix>/light/<id>/state and the
// gateway connection to <prefix>/status/gateway. Only changed lights are
// republished; a light that disappears from the gateway has its retained
// message cleared. When remote commands are enabled, messages on
// <prefix>/light/<id>/set and <prefix>/scene/set are routed through the
// command dispatcher exactly like keyboard input.
package mirror
