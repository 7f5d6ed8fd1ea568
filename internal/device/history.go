package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// PositionRecord is one reported position in the history table.
type PositionRecord struct {
	ID         int64
	Device     string
	Position   int
	RecordedAt time.Time
}

// CommandRecord is one forwarded command in the history table.
type CommandRecord struct {
	ID        int64
	Device    string
	Target    int
	Succeeded bool
	Detail    string
	IssuedAt  time.Time
}

// HistoryStore records positions and commands in SQLite. It is safe
// for concurrent use; the underlying pool serializes writes.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a store over an open SQLite connection. The
// schema must already be migrated.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RecordPosition inserts a reported position for a device.
func (s *HistoryStore) RecordPosition(ctx context.Context, device string, position int) error {
	if device == "" {
		return fmt.Errorf("device name is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO position_history (device, position, recorded_at) VALUES (?, ?, ?)",
		device,
		position,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting position history: %w", err)
	}
	return nil
}

// RecordCommand inserts a forwarded command, successful or not. detail
// carries the failure reason when succeeded is false.
func (s *HistoryStore) RecordCommand(ctx context.Context, device string, target int, succeeded bool, detail string) error {
	if device == "" {
		return fmt.Errorf("device name is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO command_history (device, target, succeeded, detail, issued_at) VALUES (?, ?, ?, ?, ?)",
		device,
		target,
		succeeded,
		detail,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command history: %w", err)
	}
	return nil
}

// Positions returns recent reported positions for a device, newest
// first. limit defaults to 50 and is capped at 200.
func (s *HistoryStore) Positions(ctx context.Context, device string, limit int) ([]PositionRecord, error) {
	if device == "" {
		return nil, fmt.Errorf("device name is required")
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device, position, recorded_at
		 FROM position_history
		 WHERE device = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		device,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying position history: %w", err)
	}
	defer rows.Close()

	records := make([]PositionRecord, 0, limit)
	for rows.Next() {
		var r PositionRecord
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.Device, &r.Position, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning position history: %w", err)
		}
		r.RecordedAt, err = parseHistoryTimestamp(recordedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating position history: %w", err)
	}
	return records, nil
}

// Commands returns recent forwarded commands for a device, newest
// first. limit defaults to 50 and is capped at 200.
func (s *HistoryStore) Commands(ctx context.Context, device string, limit int) ([]CommandRecord, error) {
	if device == "" {
		return nil, fmt.Errorf("device name is required")
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device, target, succeeded, detail, issued_at
		 FROM command_history
		 WHERE device = ?
		 ORDER BY issued_at DESC, id DESC
		 LIMIT ?`,
		device,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}
	defer rows.Close()

	records := make([]CommandRecord, 0, limit)
	for rows.Next() {
		var r CommandRecord
		var issuedAt string
		if err := rows.Scan(&r.ID, &r.Device, &r.Target, &r.Succeeded, &r.Detail, &issuedAt); err != nil {
			return nil, fmt.Errorf("scanning command history: %w", err)
		}
		r.IssuedAt, err = parseHistoryTimestamp(issuedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command history: %w", err)
	}
	return records, nil
}

// LastPosition returns the most recent reported position for a device.
// ok is false when the device has no history.
func (s *HistoryStore) LastPosition(ctx context.Context, device string) (position int, ok bool, err error) {
	if device == "" {
		return 0, false, fmt.Errorf("device name is required")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT position FROM position_history
		 WHERE device = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1`,
		device,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying last position: %w", err)
	}
	return position, true, nil
}

// Prune deletes history rows older than the given duration and returns
// the number of rows removed.
func (s *HistoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	var total int64
	for _, stmt := range []string{
		"DELETE FROM position_history WHERE recorded_at < ?",
		"DELETE FROM command_history WHERE issued_at < ?",
	} {
		result, err := s.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return timestamp, nil
}
