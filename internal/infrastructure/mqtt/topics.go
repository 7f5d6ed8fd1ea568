package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout, mirroring the original vlx2mqtt contract:
//
//	<roottopic>/<device>      device position, non-retained
//	<roottopic>/<device>/set  device command, subscribed per opening device
//	<statustopic>             retained bridge lifecycle status strings
//
// Device names come from the KLF200 roster and may contain spaces but
// never '/' (the gateway rejects them); the builders do no escaping.

// commandSuffix is the trailing topic level for device commands.
const commandSuffix = "set"

// DeviceState returns the state topic for a device.
//
// Example: home/vlx/shutter1
func DeviceState(root, deviceID string) string {
	return fmt.Sprintf("%s/%s", root, deviceID)
}

// DeviceCommand returns the command topic for a device.
//
// Example: home/vlx/shutter1/set
func DeviceCommand(root, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", root, deviceID, commandSuffix)
}

// ParseDeviceCommand extracts the device identifier from a command topic.
//
// The topic must have the exact shape <root>/<device>/set with a non-empty
// device level. Returns ok=false for anything else.
func ParseDeviceCommand(root, topic string) (deviceID string, ok bool) {
	prefix := root + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}

	rest := strings.TrimPrefix(topic, prefix)
	device, found := strings.CutSuffix(rest, "/"+commandSuffix)
	if !found || device == "" || strings.Contains(device, "/") {
		return "", false
	}

	return device, true
}
