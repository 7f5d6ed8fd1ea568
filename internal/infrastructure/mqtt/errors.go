package mqtt

import (
	"errors"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// IsFatalRefusal reports whether a connect error is a broker refusal that
// retrying cannot heal: unacceptable protocol version, rejected client
// identifier, bad credentials, or not-authorised.
//
// "Server unavailable" refusals, network-level failures, and connect
// timeouts are transient; the caller should wait and retry those.
func IsFatalRefusal(err error) bool {
	if err == nil {
		return false
	}

	// Transient conditions first: server-unavailable CONNACK and anything
	// that never reached a CONNACK at all.
	if errors.Is(err, packets.ErrorRefusedServerUnavailable) ||
		errors.Is(err, packets.ErrorNetworkError) {
		return false
	}

	// Any other recognised CONNACK refusal is fatal.
	for _, refusal := range packets.ConnErrors {
		if refusal == nil {
			continue
		}
		if errors.Is(err, refusal) {
			return true
		}
	}

	// Dial failures, timeouts, unknown transport errors: transient.
	return false
}
