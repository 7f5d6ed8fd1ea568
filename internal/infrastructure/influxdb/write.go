package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePosition records a position the gateway reported for a device.
// Non-blocking; the point is batched and sent asynchronously.
func (c *Client) WritePosition(device string, percent int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"position",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"percent": percent,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommand records a command the bridge forwarded to the gateway,
// including whether the gateway accepted it.
func (c *Client) WriteCommand(device string, target int, succeeded bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"target":    target,
			"succeeded": succeeded,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeEvent records a lifecycle event such as a broker reconnect
// or a shutdown.
func (c *Client) WriteBridgeEvent(event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_event",
		map[string]string{
			"event": event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
