// Package mqtt connects FrostLux to an optional LAN MQTT broker.
//
// The broker is a side channel: light state is mirrored out as retained
// messages and, when enabled, commands can come back in. The gateway
// session never depends on it.
//
// The client manages:
//   - connection with auto-reconnect and subscription restore
//   - a retained status topic with a Last Will for crash detection
//   - publish/subscribe with QoS validation and handler panic recovery
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishRetained(topics.LightState(65537), payload)
package mqtt
