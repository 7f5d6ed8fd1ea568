// Package device persists the bridge's view of the gateway's opening
// devices.
//
// The HistoryStore records every position the gateway reports and every
// command the bridge forwards, in the SQLite database managed by the
// infrastructure/database package. History is optional; when disabled
// in configuration the bridge runs without a store.
package device
