// vlx2mqtt - Velux KLF200 to MQTT bridge
//
// This is the main entry point for the vlx2mqtt application. It mirrors
// the position of every motorised opening device known to a KLF200
// gateway onto MQTT topics, and relays MQTT commands back to the
// gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/vlx2mqtt/migrations"

	"github.com/nerrad567/vlx2mqtt/internal/bridge"
	"github.com/nerrad567/vlx2mqtt/internal/device"
	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/vlx2mqtt/internal/velux"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	configPath, err := configPathFromArgs(os.Args[1:])
	if err != nil {
		return err
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting vlx2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log, err = logging.New(cfg.Log, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer func() {
		_ = log.Close()
	}()
	log.Info("logger initialised",
		"verbose", cfg.Log.VerboseEnabled(),
		"format", cfg.Log.Format,
	)
	log.Debug("configuration",
		"mqtt_host", cfg.MQTT.Host,
		"mqtt_port", cfg.MQTT.Port,
		"roottopic", cfg.MQTT.RootTopic,
		"statustopic", cfg.MQTT.StatusTopic,
		"velux_host", cfg.Velux.Host,
		"velux_port", cfg.Velux.Port,
		"history", cfg.History.Enabled,
		"influxdb", cfg.InfluxDB.Enabled,
	)

	// MQTT client is created unconnected; the bridge owns the
	// connect/retry lifecycle.
	mqttClient := mqtt.NewClient(cfg.MQTT)
	mqttClient.SetLogger(log)

	table := bridge.NewCommandTable()
	broker := bridge.NewBrokerManager(mqttClient, bridge.BrokerConfig{
		RootTopic:         cfg.MQTT.RootTopic,
		StatusTopic:       cfg.MQTT.StatusTopic,
		ConnectRetryDelay: cfg.GetConnectRetryDelay(),
	}, table, log)

	b := bridge.New(broker, hubConnector(cfg, log), table, bridge.Config{
		ReconnectDelay: cfg.GetDisconnectRetryDelay(),
	}, log)

	// Optional local position/command history (SQLite)
	if cfg.History.Enabled {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening history database: %w", dbErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("history database ready", "path", cfg.History.Path)

		b.SetHistory(device.NewHistoryStore(db.DB))
	}

	// Optional telemetry (InfluxDB)
	if cfg.InfluxDB.Enabled {
		influx, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		influx.SetOnError(func(writeErr error) {
			log.Error("influxdb write failed", "error", writeErr)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			influx.Close()
		}()
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		b.SetTelemetry(influx)
	}

	if runErr := b.Run(ctx); runErr != nil {
		return runErr
	}

	log.Info("vlx2mqtt stopped")
	return nil
}

// hubConnector builds the factory the bridge uses to establish a
// KLF200 session. Each invocation dials a fresh session.
func hubConnector(cfg *config.Config, log *logging.Logger) bridge.HubConnector {
	return func(ctx context.Context) (bridge.Hub, error) {
		session, err := velux.Connect(ctx, velux.Config{
			Host:           cfg.Velux.Host,
			Port:           cfg.Velux.Port,
			Password:       cfg.Velux.Password,
			ConnectTimeout: cfg.GetVeluxConnectTimeout(),
		})
		if err != nil {
			return nil, err
		}
		session.SetLogger(log)
		return session, nil
	}
}

// configPathFromArgs extracts the configuration file path from the
// command line. Exactly one positional argument is expected.
func configPathFromArgs(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: vlx2mqtt <config.yaml>")
	}
	return args[0], nil
}
