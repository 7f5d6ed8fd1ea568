package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/vlx2mqtt/internal/velux"
)

// mockHub is a scriptable gateway session for orchestrator tests.
type mockHub struct {
	mu sync.Mutex

	nodes   []velux.Node
	loadErr error

	setCalls []StagedCommand
	setErrs  map[string]error

	onUpdate velux.UpdateFunc
	closed   bool
}

func (h *mockHub) LoadNodes(context.Context) (int, error) {
	if h.loadErr != nil {
		return 0, h.loadErr
	}
	return len(h.nodes), nil
}

func (h *mockHub) Nodes() []velux.Node {
	return h.nodes
}

func (h *mockHub) SetOnNodeUpdate(fn velux.UpdateFunc) {
	h.mu.Lock()
	h.onUpdate = fn
	h.mu.Unlock()
}

func (h *mockHub) SetPosition(_ context.Context, name string, percent int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.setCalls = append(h.setCalls, StagedCommand{Device: name, Target: percent})
	if err := h.setErrs[name]; err != nil {
		return err
	}
	return nil
}

func (h *mockHub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *mockHub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *mockHub) positionCalls() []StagedCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StagedCommand(nil), h.setCalls...)
}

// reportUpdate fires the registered update callback, as the gateway
// session would on a position notification.
func (h *mockHub) reportUpdate(t *testing.T, name string, percent int) {
	t.Helper()

	h.mu.Lock()
	fn := h.onUpdate
	h.mu.Unlock()

	if fn == nil {
		t.Fatal("no update callback registered")
	}
	fn(name, percent)
}

func testBridgeConfig() Config {
	return Config{
		TickInterval:   10 * time.Millisecond,
		StartupPause:   5 * time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func openingNode(id uint8, name string) velux.Node {
	return velux.Node{ID: id, Name: name, TypeSub: 4 << 6}
}

type testBridge struct {
	bridge *Bridge
	client *mockMQTT
	hub    *mockHub
	table  *CommandTable
}

func newTestBridge(hub *mockHub) *testBridge {
	client := newMockMQTT()
	table := NewCommandTable()
	manager := NewBrokerManager(client, testBrokerConfig(), table, nil)

	connector := func(context.Context) (Hub, error) {
		if hub == nil {
			return nil, errors.New("gateway unreachable")
		}
		return hub, nil
	}

	return &testBridge{
		bridge: New(manager, connector, table, testBridgeConfig(), nil),
		client: client,
		hub:    hub,
		table:  table,
	}
}

func TestRunLifecycle(t *testing.T) {
	hub := &mockHub{nodes: []velux.Node{
		openingNode(1, "shutter1"),
		{ID: 2, Name: "hall light", TypeSub: 6 << 6}, // enumerated, never bridged
	}}
	tb := newTestBridge(hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tb.bridge.Run(ctx) }()

	// Live once the update callback is registered.
	waitFor(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return hub.onUpdate != nil
	}, "bridge never went live")

	// Only the opening device's command topic is subscribed.
	tb.client.mu.Lock()
	_, shutterSub := tb.client.subscriptions["home/shutter1/set"]
	_, lightSub := tb.client.subscriptions["home/hall light/set"]
	tb.client.mu.Unlock()
	if !shutterSub {
		t.Error("missing subscription for home/shutter1/set")
	}
	if lightSub {
		t.Error("non-opening device was subscribed")
	}

	// Inbound command flows through staging to a gateway write.
	tb.client.deliver(t, "home/shutter1/set", "42")
	waitFor(t, func() bool {
		calls := hub.positionCalls()
		return len(calls) == 1 && calls[0] == StagedCommand{Device: "shutter1", Target: 42}
	}, "staged command never issued")

	// Gateway update republishes immediately.
	hub.reportUpdate(t, "shutter1", 37)
	msgs := tb.client.publishedTo("home/shutter1")
	if len(msgs) != 1 || msgs[0].payload != "37" || msgs[0].retained {
		t.Errorf("state publishes = %+v, want non-retained \"37\"", msgs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if !hub.isClosed() {
		t.Error("hub session not closed on shutdown")
	}

	var payloads []string
	for _, msg := range tb.client.publishedTo("home/status") {
		if !msg.retained {
			t.Errorf("status publish %+v not retained", msg)
		}
		payloads = append(payloads, msg.payload)
	}
	want := []string{
		StatusConnected,
		StatusStarted,
		StatusHubAvailable,
		StatusDisconnectingHub,
		StatusDisconnectedHub,
		StatusDisconnected,
	}
	if len(payloads) != len(want) {
		t.Fatalf("status sequence = %v, want %v", payloads, want)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, payloads[i], want[i])
		}
	}
}

func TestRunFatalBrokerRefusal(t *testing.T) {
	hub := &mockHub{}
	tb := newTestBridge(hub)
	tb.client.connectErrs = []error{refusal(packets.ErrorRefusedBadUsernameOrPassword)}

	err := tb.bridge.Run(context.Background())
	if !errors.Is(err, ErrBrokerFatal) {
		t.Fatalf("Run() error = %v, want ErrBrokerFatal", err)
	}
	if len(hub.positionCalls()) != 0 {
		t.Error("gateway written despite fatal broker refusal")
	}
}

func TestRunHubConnectFailure(t *testing.T) {
	tb := newTestBridge(nil)

	err := tb.bridge.Run(context.Background())
	if !errors.Is(err, ErrHubUnavailable) {
		t.Fatalf("Run() error = %v, want ErrHubUnavailable", err)
	}

	// Shutdown still leaves DISCONNECTED retained on the status topic.
	statuses := tb.client.publishedTo("home/status")
	if len(statuses) == 0 {
		t.Fatal("no status publishes")
	}
	last := statuses[len(statuses)-1]
	if last.payload != StatusDisconnected || !last.retained {
		t.Errorf("terminal status = %+v, want retained DISCONNECTED", last)
	}
}

func TestFailedWriteDoesNotStopLoop(t *testing.T) {
	hub := &mockHub{
		nodes:   []velux.Node{openingNode(1, "shutter1"), openingNode(2, "window2")},
		setErrs: map[string]error{"shutter1": velux.ErrCommandRejected},
	}
	tb := newTestBridge(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tb.bridge.Run(ctx) }()

	waitFor(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return hub.onUpdate != nil
	}, "bridge never went live")

	tb.client.deliver(t, "home/shutter1/set", "50")
	waitFor(t, func() bool {
		return len(hub.positionCalls()) == 1
	}, "failing command never issued")

	// The failed command is dropped, not retried, and later commands
	// still go through.
	tb.client.deliver(t, "home/window2/set", "80")
	waitFor(t, func() bool {
		calls := hub.positionCalls()
		return len(calls) == 2 && calls[1] == StagedCommand{Device: "window2", Target: 80}
	}, "loop stopped after failed write")

	cancel()
	<-done
}

func TestBrokerReconnect(t *testing.T) {
	hub := &mockHub{nodes: []velux.Node{openingNode(1, "shutter1")}}
	tb := newTestBridge(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tb.bridge.Run(ctx) }()

	waitFor(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return hub.onUpdate != nil
	}, "bridge never went live")

	tb.client.dropConnection(errors.New("broken pipe"))

	// The loop reconnects, republishes CONNECTED and re-subscribes.
	waitFor(t, func() bool {
		statuses := tb.client.publishedTo("home/status")
		connects := 0
		for _, s := range statuses {
			if s.payload == StatusConnected {
				connects++
			}
		}
		return connects == 2
	}, "no reconnect after connection loss")

	tb.client.mu.Lock()
	_, resubscribed := tb.client.subscriptions["home/shutter1/set"]
	tb.client.mu.Unlock()
	if !resubscribed {
		t.Error("command topic not re-subscribed after reconnect")
	}

	cancel()
	<-done
}
