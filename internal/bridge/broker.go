package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/mqtt"
)

// Logger receives diagnostic output from the bridge components. It is
// satisfied by logging.Logger; a nil logger silences output.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the broker client surface the manager needs. Satisfied
// by mqtt.Client.
type MQTTClient interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnectionLost(callback func(err error))
}

// BrokerConfig holds the manager's topics and retry timing.
type BrokerConfig struct {
	// RootTopic prefixes the per-device state and command topics.
	RootTopic string

	// StatusTopic carries the retained lifecycle status strings.
	StatusTopic string

	// ConnectRetryDelay is the wait between failed connect attempts.
	ConnectRetryDelay time.Duration
}

const defaultConnectRetryDelay = 10 * time.Second

// BrokerManager owns the broker connection lifecycle: the blocking
// connect/retry loop, refusal classification, the retained status
// topic, per-device command subscriptions and state publishes.
//
// It does not reconnect by itself. An unexpected disconnect surfaces
// on ConnectionLost and the orchestrator re-invokes Connect.
type BrokerManager struct {
	client MQTTClient
	cfg    BrokerConfig
	table  *CommandTable
	logger Logger

	devicesMu sync.Mutex
	devices   []string

	lost chan error
}

// NewBrokerManager wires a manager to an unconnected client. Inbound
// commands are staged into table.
func NewBrokerManager(client MQTTClient, cfg BrokerConfig, table *CommandTable, logger Logger) *BrokerManager {
	if cfg.ConnectRetryDelay <= 0 {
		cfg.ConnectRetryDelay = defaultConnectRetryDelay
	}

	m := &BrokerManager{
		client: client,
		cfg:    cfg,
		table:  table,
		logger: logger,
		lost:   make(chan error, 1),
	}

	client.SetOnConnectionLost(func(err error) {
		m.logWarn("broker connection lost", "error", err)
		select {
		case m.lost <- err:
		default:
		}
	})

	return m
}

// Connect blocks until the broker accepts the connection, retrying
// transient refusals at a fixed delay indefinitely. Fatal refusals
// (bad credentials, protocol mismatch, rejected identifier, not
// authorised, or any unrecognized refusal) return ErrBrokerFatal.
//
// On success it publishes the retained "CONNECTED" status and
// re-subscribes the known device command topics.
func (m *BrokerManager) Connect(ctx context.Context) error {
	for {
		err := m.client.Connect()
		if err == nil {
			m.logInfo("connected to broker")
			m.PublishStatus(StatusConnected)
			m.subscribeAll()
			return nil
		}

		if mqtt.IsFatalRefusal(err) {
			return fmt.Errorf("%w: %w", ErrBrokerFatal, err)
		}

		m.logWarn("broker connect failed, retrying",
			"error", err,
			"retry_in", m.cfg.ConnectRetryDelay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ConnectRetryDelay):
		}
	}
}

// Disconnect closes the broker connection cleanly. A clean disconnect
// does not fire ConnectionLost.
func (m *BrokerManager) Disconnect() {
	m.client.Disconnect()
}

// IsConnected reports the broker connection state.
func (m *BrokerManager) IsConnected() bool {
	return m.client.IsConnected()
}

// ConnectionLost delivers unexpected disconnects. The channel holds at
// most one pending event; the orchestrator handles reconnect pacing.
func (m *BrokerManager) ConnectionLost() <-chan error {
	return m.lost
}

// SetDevices records the opening devices whose command topics the
// manager subscribes to, and subscribes immediately when connected.
// Subsequent Connect calls re-subscribe the same set.
func (m *BrokerManager) SetDevices(devices []string) {
	m.devicesMu.Lock()
	m.devices = append([]string(nil), devices...)
	m.devicesMu.Unlock()

	if m.client.IsConnected() {
		m.subscribeAll()
	}
}

// PublishPosition publishes a device position to the state topic,
// non-retained and fire-and-forget. A no-op while disconnected.
func (m *BrokerManager) PublishPosition(device string, percent int) {
	if !m.client.IsConnected() {
		m.logDebug("skipping position publish, broker not connected", "device", device)
		return
	}

	topic := mqtt.DeviceState(m.cfg.RootTopic, device)
	if err := m.client.Publish(topic, []byte(strconv.Itoa(percent)), 0, false); err != nil {
		m.logWarn("position publish failed", "device", device, "error", err)
	}
}

// PublishStatus publishes a retained lifecycle status string. A no-op
// while disconnected.
func (m *BrokerManager) PublishStatus(status string) {
	if !m.client.IsConnected() {
		m.logDebug("skipping status publish, broker not connected", "status", status)
		return
	}

	if err := m.client.Publish(m.cfg.StatusTopic, []byte(status), 0, true); err != nil {
		m.logWarn("status publish failed", "status", status, "error", err)
	}
}

// subscribeAll subscribes the command topic of every known device.
func (m *BrokerManager) subscribeAll() {
	m.devicesMu.Lock()
	devices := append([]string(nil), m.devices...)
	m.devicesMu.Unlock()

	for _, device := range devices {
		topic := mqtt.DeviceCommand(m.cfg.RootTopic, device)
		if err := m.client.Subscribe(topic, 0, m.handleMessage); err != nil {
			m.logError("command subscription failed", "topic", topic, "error", err)
		}
	}
}

// handleMessage stages inbound command payloads. Anything that is not
// a <root>/<device>/set topic with an integer 0..100 payload is
// ignored without error.
func (m *BrokerManager) handleMessage(topic string, payload []byte) error {
	device, ok := mqtt.ParseDeviceCommand(m.cfg.RootTopic, topic)
	if !ok {
		return nil
	}

	target, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		m.logDebug("ignoring malformed command payload",
			"device", device,
			"payload", string(payload),
		)
		return nil
	}
	if target < 0 || target > 100 {
		m.logDebug("ignoring out-of-range command", "device", device, "target", target)
		return nil
	}

	m.logDebug("staging command", "device", device, "target", target)
	m.table.Stage(device, target)
	return nil
}

func (m *BrokerManager) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func (m *BrokerManager) logInfo(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

func (m *BrokerManager) logWarn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

func (m *BrokerManager) logError(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Error(msg, args...)
	}
}
