package device

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/database"
	_ "github.com/nerrad567/vlx2mqtt/migrations"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return NewHistoryStore(db.DB)
}

func TestRecordPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordPosition(ctx, "Kitchen window", 40); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}
	if err := store.RecordPosition(ctx, "Kitchen window", 60); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}

	records, err := store.Positions(ctx, "Kitchen window", 10)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Position != 60 {
		t.Errorf("newest position = %d, want 60", records[0].Position)
	}
	if records[0].RecordedAt.IsZero() {
		t.Error("RecordedAt not set")
	}
}

func TestRecordPositionRequiresDevice(t *testing.T) {
	store := newTestStore(t)

	if err := store.RecordPosition(context.Background(), "", 40); err == nil {
		t.Error("expected error for empty device name")
	}
}

func TestRecordCommand(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordCommand(ctx, "Bedroom shutter", 100, true, ""); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}
	if err := store.RecordCommand(ctx, "Bedroom shutter", 0, false, "command rejected"); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}

	records, err := store.Commands(ctx, "Bedroom shutter", 10)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Succeeded {
		t.Error("newest command should be the failed one")
	}
	if records[0].Detail != "command rejected" {
		t.Errorf("detail = %q, want %q", records[0].Detail, "command rejected")
	}
}

func TestPositionsScopedToDevice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordPosition(ctx, "Kitchen window", 40); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}
	if err := store.RecordPosition(ctx, "Bedroom shutter", 80); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}

	records, err := store.Positions(ctx, "Kitchen window", 10)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(records) != 1 || records[0].Device != "Kitchen window" {
		t.Errorf("records = %+v, want only Kitchen window", records)
	}
}

func TestLastPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LastPosition(ctx, "Kitchen window")
	if err != nil {
		t.Fatalf("LastPosition: %v", err)
	}
	if ok {
		t.Error("expected no history for fresh device")
	}

	if err := store.RecordPosition(ctx, "Kitchen window", 25); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}
	if err := store.RecordPosition(ctx, "Kitchen window", 75); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}

	position, ok, err := store.LastPosition(ctx, "Kitchen window")
	if err != nil {
		t.Fatalf("LastPosition: %v", err)
	}
	if !ok || position != 75 {
		t.Errorf("LastPosition = %d, %v; want 75, true", position, ok)
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Insert a row with an old timestamp directly.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := store.db.ExecContext(ctx,
		"INSERT INTO position_history (device, position, recorded_at) VALUES (?, ?, ?)",
		"Kitchen window", 10, old,
	); err != nil {
		t.Fatalf("inserting old row: %v", err)
	}
	if err := store.RecordPosition(ctx, "Kitchen window", 50); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}

	pruned, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	records, err := store.Positions(ctx, "Kitchen window", 10)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(records) != 1 || records[0].Position != 50 {
		t.Errorf("records = %+v, want only the recent row", records)
	}
}

func TestPruneRejectsNonPositive(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Prune(context.Background(), 0); err == nil {
		t.Error("expected error for non-positive duration")
	}
}
