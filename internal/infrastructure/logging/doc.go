// Package logging provides structured logging for vlx2mqtt.
//
// It wraps the standard library's log/slog with configuration-driven
// setup: output destination (stdout or the configured log file),
// verbose/debug filtering, and default service/version attributes.
//
// Usage:
//
//	log, err := logging.New(cfg.Log, version)
//	if err != nil {
//	    return err
//	}
//	defer log.Close()
//	log.Info("starting", "broker", cfg.MQTT.Host)
package logging
