package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/vlx2mqtt/internal/device"
	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/vlx2mqtt/internal/velux"
)

// Hub is the gateway session surface the bridge needs. Satisfied by
// velux.Session.
type Hub interface {
	LoadNodes(ctx context.Context) (int, error)
	Nodes() []velux.Node
	SetOnNodeUpdate(fn velux.UpdateFunc)
	SetPosition(ctx context.Context, name string, percent int) error
	Close()
}

// HubConnector opens a gateway session. The bridge calls it once at
// startup, after the broker connection is established.
type HubConnector func(ctx context.Context) (Hub, error)

// Config holds the orchestrator's timing knobs.
type Config struct {
	// TickInterval is the cadence at which staged commands are drained
	// and issued to the gateway.
	TickInterval time.Duration

	// StartupPause lets the broker's network loop settle between the
	// roster load and the first status publish.
	StartupPause time.Duration

	// ReconnectDelay is the wait after an unexpected broker disconnect
	// before the connect loop is re-entered.
	ReconnectDelay time.Duration
}

const (
	defaultTickInterval   = 1 * time.Second
	defaultStartupPause   = 2 * time.Second
	defaultReconnectDelay = 5 * time.Second

	// commandTimeout bounds a single gateway position write.
	commandTimeout = 30 * time.Second

	// recordTimeout bounds a history insert so a wedged disk cannot
	// stall the loop.
	recordTimeout = 5 * time.Second
)

// Bridge synchronizes gateway device positions with the broker: staged
// broker commands flow to the gateway once per tick, gateway position
// updates are republished immediately, and a run/shutdown state machine
// keeps the status topic truthful.
type Bridge struct {
	broker     *BrokerManager
	connectHub HubConnector
	table      *CommandTable
	cfg        Config
	logger     Logger

	// Optional sinks; nil disables them.
	history   *device.HistoryStore
	telemetry *influxdb.Client
}

// New creates a bridge. history and telemetry may be nil.
func New(broker *BrokerManager, connectHub HubConnector, table *CommandTable, cfg Config, logger Logger) *Bridge {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.StartupPause <= 0 {
		cfg.StartupPause = defaultStartupPause
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}

	return &Bridge{
		broker:     broker,
		connectHub: connectHub,
		table:      table,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetHistory attaches the SQLite history store.
func (b *Bridge) SetHistory(store *device.HistoryStore) {
	b.history = store
}

// SetTelemetry attaches the InfluxDB telemetry client.
func (b *Bridge) SetTelemetry(client *influxdb.Client) {
	b.telemetry = client
}

// Run executes the bridge until ctx is cancelled or a fatal broker
// refusal occurs. The startup order is deliberate: broker first (so
// the dropped-update window before subscriptions exist stays small and
// declared), then the gateway roster, then the stabilization pause and
// callbacks. Shutdown walks the status topic through the disconnect
// sequence and leaves "DISCONNECTED" retained.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.broker.Connect(ctx); err != nil {
		if errors.Is(err, ErrBrokerFatal) {
			b.logError("broker refused connection, shutting down", "error", err)
			b.shutdown(nil)
		}
		return err
	}
	b.broker.PublishStatus(StatusStarted)

	hub, err := b.connectHub(ctx)
	if err != nil {
		b.logError("gateway connection failed", "error", err)
		b.shutdown(nil)
		return errors.Join(ErrHubUnavailable, err)
	}

	count, err := hub.LoadNodes(ctx)
	if err != nil {
		b.logError("loading gateway roster failed", "error", err)
		b.shutdown(hub)
		return errors.Join(ErrHubUnavailable, err)
	}

	devices := b.logRoster(hub, count)
	b.broker.SetDevices(devices)

	if !b.pause(ctx, b.cfg.StartupPause) {
		b.shutdown(hub)
		return nil
	}
	b.broker.PublishStatus(StatusHubAvailable)

	hub.SetOnNodeUpdate(b.handleHubUpdate)
	b.logInfo("bridge is live", "devices", len(devices))

	err = b.loop(ctx, hub)
	b.shutdown(hub)
	return err
}

// loop runs the main tick until cancellation or a fatal broker error.
func (b *Bridge) loop(ctx context.Context, hub Hub) error {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-b.broker.ConnectionLost():
			b.logWarn("reconnecting to broker",
				"error", err,
				"wait", b.cfg.ReconnectDelay,
			)
			b.recordEvent("broker_reconnect")
			if !b.pause(ctx, b.cfg.ReconnectDelay) {
				return nil
			}
			if err := b.broker.Connect(ctx); err != nil {
				if errors.Is(err, ErrBrokerFatal) {
					b.logError("broker refused reconnection, shutting down", "error", err)
					return err
				}
				return nil // context cancelled during retry
			}

		case <-ticker.C:
			b.issueStaged(ctx, hub)
		}
	}
}

// issueStaged drains the staging table and writes each command to the
// gateway in turn. Writes are serialized; a failed write is dropped
// with a log line and does not stop the loop.
func (b *Bridge) issueStaged(ctx context.Context, hub Hub) {
	for _, cmd := range b.table.Drain() {
		writeCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err := hub.SetPosition(writeCtx, cmd.Device, cmd.Target)
		cancel()

		if err != nil {
			b.logError("position command failed",
				"device", cmd.Device,
				"target", cmd.Target,
				"error", err,
			)
			b.recordCommand(cmd, false, err.Error())
			continue
		}

		b.logInfo("position command issued", "device", cmd.Device, "target", cmd.Target)
		b.recordCommand(cmd, true, "")
	}
}

// handleHubUpdate republishes a gateway position change immediately,
// independent of the tick cadence. Runs on the hub session's callback
// goroutine.
func (b *Bridge) handleHubUpdate(name string, percent int) {
	b.logDebug("gateway update", "device", name, "position", percent)
	b.broker.PublishPosition(name, percent)

	if b.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := b.history.RecordPosition(ctx, name, percent); err != nil {
			b.logWarn("recording position failed", "device", name, "error", err)
		}
		cancel()
	}
	if b.telemetry != nil {
		b.telemetry.WritePosition(name, percent)
	}
}

// logRoster logs every enumerated node and returns the names of the
// opening devices, the only ones the bridge manages.
func (b *Bridge) logRoster(hub Hub, count int) []string {
	var devices []string
	for _, node := range hub.Nodes() {
		if !node.IsOpeningDevice() {
			b.logInfo("ignoring non-opening device",
				"id", node.ID,
				"name", node.Name,
				"type", node.Type(),
			)
			continue
		}
		b.logInfo("bridging device",
			"id", node.ID,
			"name", node.Name,
			"position", node.Position.Percent(),
		)
		devices = append(devices, node.Name)
	}
	b.logInfo("gateway roster loaded", "nodes", count, "bridged", len(devices))
	return devices
}

// shutdown walks the disconnect sequence. hub may be nil when startup
// failed before the session opened.
func (b *Bridge) shutdown(hub Hub) {
	if hub != nil {
		b.broker.PublishStatus(StatusDisconnectingHub)
		hub.Close()
		b.broker.PublishStatus(StatusDisconnectedHub)
		b.logInfo("gateway disconnected")
	}

	b.broker.PublishStatus(StatusDisconnected)
	b.broker.Disconnect()
	b.logInfo("broker disconnected")
}

// pause sleeps for d, returning false if ctx was cancelled first.
func (b *Bridge) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (b *Bridge) recordCommand(cmd StagedCommand, succeeded bool, detail string) {
	if b.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := b.history.RecordCommand(ctx, cmd.Device, cmd.Target, succeeded, detail); err != nil {
			b.logWarn("recording command failed", "device", cmd.Device, "error", err)
		}
		cancel()
	}
	if b.telemetry != nil {
		b.telemetry.WriteCommand(cmd.Device, cmd.Target, succeeded)
	}
}

func (b *Bridge) recordEvent(event string) {
	if b.telemetry != nil {
		b.telemetry.WriteBridgeEvent(event)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Error(msg, args...)
	}
}
