// Package mqtt provides the MQTT broker client for vlx2mqtt.
//
// It wraps eclipse/paho.mqtt.golang with:
//   - Single-attempt connects whose refusal reason can be classified
//     (IsFatalRefusal) so the bridge can decide between retry and shutdown
//   - Publish/subscribe with timeouts and panic-recovered handlers
//   - Topic builders and parsing for the vlx2mqtt topic contract
//
// Reconnection policy lives in the bridge's broker connection manager,
// not here: paho auto-reconnect is disabled so that the bridge owns the
// fixed-delay retry loops and the retained status-topic lifecycle.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package mqtt
