// Package influxdb writes optional bridge telemetry to an InfluxDB v2
// server.
//
// Positions reported by the gateway and commands forwarded to it are
// recorded as measurements through the non-blocking write API: points
// are batched and flushed in the background, so a slow or unreachable
// telemetry server never stalls the bridge. Write failures surface
// through an error callback.
package influxdb
