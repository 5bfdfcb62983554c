package store

import (
	"context"
	"fmt"
	"time"

	"github.com/outreachops/intakesync/internal/types"
)

// AppendSyncLog records the outcome of one pull or push invocation.
// Entries are append-only; nothing ever updates or deletes them.
func (db *DB) AppendSyncLog(ctx context.Context, entry *types.SyncLogEntry) error {
	if entry.Direction != types.DirectionPull && entry.Direction != types.DirectionPush {
		return fmt.Errorf("invalid sync direction: %q", entry.Direction)
	}
	if entry.Outcome != types.OutcomeSuccess && entry.Outcome != types.OutcomeError {
		return fmt.Errorf("invalid sync outcome: %q", entry.Outcome)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
	INSERT INTO sync_log (direction, record_count, outcome, error, created_at)
	VALUES (?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		string(entry.Direction),
		entry.RecordCount,
		string(entry.Outcome),
		entry.Error,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.CreatedAt = createdAt

	return nil
}

// ListRecentSyncLogs returns the most recent sync log entries,
// newest first. Limit 0 defaults to 20.
func (db *DB) ListRecentSyncLogs(ctx context.Context, limit int) ([]*types.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, direction, record_count, outcome, error, created_at
		FROM sync_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var entries []*types.SyncLogEntry
	for rows.Next() {
		var entry types.SyncLogEntry
		var direction, outcome, createdAt string

		err := rows.Scan(
			&entry.ID,
			&direction,
			&entry.RecordCount,
			&outcome,
			&entry.Error,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}

		entry.Direction = types.SyncDirection(direction)
		entry.Outcome = types.SyncOutcome(outcome)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			entry.CreatedAt = t
		}

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}

	return entries, nil
}

// GetSyncLogCount returns the total number of sync log entries.
func (db *DB) GetSyncLogCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_log").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get sync log count: %w", err)
	}
	return count, nil
}
