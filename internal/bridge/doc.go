// Package bridge keeps a Velux KLF200 gateway and an MQTT broker in
// sync.
//
// Commands arriving on <root>/<device>/set are staged in a per-device
// table (last writer wins) and drained once per tick into serialized
// gateway writes, each issued at most once. Position updates from the
// gateway are republished to <root>/<device> the moment they arrive.
// The BrokerManager owns the broker connection: a blocking fixed-delay
// connect loop that never gives up on transient refusals and shuts the
// process down on fatal ones, with the retained status topic tracking
// the lifecycle.
package bridge
