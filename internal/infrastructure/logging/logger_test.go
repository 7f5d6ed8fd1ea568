package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/config"
)

func TestNew_Stdout(t *testing.T) {
	cfg := config.LogConfig{Format: "text"}

	logger, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	if logger.Logger == nil {
		t.Fatal("expected non-nil slog logger")
	}
}

func TestNew_LogFile(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "vlx2mqtt.log")

	cfg := config.LogConfig{Logfile: logPath, Format: "text"}

	logger, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hello from test")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), "service=vlx2mqtt") {
		t.Errorf("log file missing service attribute, got: %s", data)
	}
}

func TestNew_LogFileUnwritable(t *testing.T) {
	cfg := config.LogConfig{Logfile: "/nonexistent-dir/sub/vlx2mqtt.log"}

	_, err := New(cfg, "1.0.0")
	if err == nil {
		t.Error("New() expected error for unwritable log file, got nil")
	}
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "debug.log")

	cfg := config.LogConfig{Logfile: logPath, Verbose: "true", Format: "text"}

	logger, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("debug line")
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "debug line") {
		t.Error("debug message not written with verbose enabled")
	}
}

func TestNew_DebugSuppressedWithoutVerbose(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "info.log")

	cfg := config.LogConfig{Logfile: logPath, Format: "text"}

	logger, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("should not appear")
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "should not appear") {
		t.Error("debug message written without verbose enabled")
	}
}

func TestWith(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "with.log")

	logger, err := New(config.LogConfig{Logfile: logPath}, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	child := logger.With("component", "bridge")
	child.Info("attributed")
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "component=bridge") {
		t.Errorf("expected component attribute, got: %s", data)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	logger.Info("default logger works")
}
