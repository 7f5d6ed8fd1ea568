package bridge

import "sync"

// sentinel marks "no pending command" for a device. It sits outside
// the valid 0..100 range so it can never be issued as a real target.
const sentinel = -1

// StagedCommand is one drained entry: move Device to Target percent.
type StagedCommand struct {
	Device string
	Target int
}

// CommandTable holds at most one pending target position per device.
// A new command overwrites the previous one (last writer wins), and
// draining clears an entry before its hub write starts, so a command
// is issued at most once.
//
// Stage is called from the broker message path and Drain from the sync
// loop tick; both are safe for concurrent use and never block on I/O.
type CommandTable struct {
	mu      sync.Mutex
	pending map[string]int
}

// NewCommandTable creates an empty table.
func NewCommandTable() *CommandTable {
	return &CommandTable{pending: make(map[string]int)}
}

// Stage records a pending target for a device, replacing any existing
// one. Values outside 0..100 are ignored so the sentinel can never be
// staged as a command.
func (t *CommandTable) Stage(device string, target int) {
	if device == "" || target < 0 || target > 100 {
		return
	}

	t.mu.Lock()
	t.pending[device] = target
	t.mu.Unlock()
}

// Drain atomically snapshots all pending commands, resets each entry
// to the sentinel and returns them. Order across devices carries no
// guarantee. A second Drain with no intervening Stage returns nothing.
func (t *CommandTable) Drain() []StagedCommand {
	t.mu.Lock()
	defer t.mu.Unlock()

	var drained []StagedCommand
	for device, target := range t.pending {
		if target == sentinel {
			continue
		}
		drained = append(drained, StagedCommand{Device: device, Target: target})
		t.pending[device] = sentinel
	}
	return drained
}

// Pending reports how many devices currently have a staged command.
func (t *CommandTable) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, target := range t.pending {
		if target != sentinel {
			n++
		}
	}
	return n
}
