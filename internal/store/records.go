package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/outreachops/intakesync/internal/types"
)

const recordColumns = `id, external_event_id, status, owner_id, org_name,
	contact_name, contact_email, contact_phone, sandwich_count,
	logistics, notes, event_date, created_at, updated_at`

// CreateRecord inserts a new intake record.
//
// Returns a unique-constraint error (see IsUniqueViolation) if another
// record already holds the same non-empty external event id.
func (db *DB) CreateRecord(record *types.IntakeRecord) error {
	return db.CreateRecordContext(context.Background(), record)
}

// CreateRecordContext inserts a record with context support.
func (db *DB) CreateRecordContext(ctx context.Context, record *types.IntakeRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	query := `
	INSERT INTO records (
		id, external_event_id, status, owner_id, org_name,
		contact_name, contact_email, contact_phone, sandwich_count,
		logistics, notes, event_date, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		record.ID,
		stringToNull(record.ExternalEventID),
		string(record.Status),
		record.OwnerID,
		record.OrgName,
		record.ContactName,
		record.ContactEmail,
		record.ContactPhone,
		record.SandwichCount,
		record.Logistics,
		record.Notes,
		timeToNullString(record.EventDate),
		record.CreatedAt.Format(time.RFC3339),
		record.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create record %s: %w", record.ID, err)
	}

	return nil
}

// GetRecord retrieves a single record by id.
// Returns sql.ErrNoRows if the record is not found.
func (db *DB) GetRecord(id string) (*types.IntakeRecord, error) {
	return db.GetRecordContext(context.Background(), id)
}

// GetRecordContext retrieves a record by id with context support.
func (db *DB) GetRecordContext(ctx context.Context, id string) (*types.IntakeRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	return scanRecord(row)
}

// GetRecordByExternalEventID retrieves the record imported from the given
// remote event, if any. Returns sql.ErrNoRows when no record holds the id.
func (db *DB) GetRecordByExternalEventID(ctx context.Context, externalID string) (*types.IntakeRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE external_event_id = ?`, externalID)
	return scanRecord(row)
}

// ListRecordsWithExternalID returns all records that were imported from
// the remote platform, keyed by their external event id. This is the
// pull reconciler's dedup index.
func (db *DB) ListRecordsWithExternalID(ctx context.Context) (map[string]*types.IntakeRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE external_event_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query imported records: %w", err)
	}
	defer rows.Close()

	index := make(map[string]*types.IntakeRecord)
	for rows.Next() {
		record, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		index[record.ExternalEventID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return index, nil
}

// ListRecordsFilter configures the ListRecords query.
type ListRecordsFilter struct {
	// Status filters by record status (empty = all statuses)
	Status string
	// OwnerID filters by owning user (empty = all owners)
	OwnerID string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListRecords retrieves records matching the given filters,
// most recently created first.
func (db *DB) ListRecords(ctx context.Context, filter ListRecordsFilter) ([]*types.IntakeRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*types.IntakeRecord
	for rows.Next() {
		record, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// UpdateRecord overwrites a record's mutable fields.
func (db *DB) UpdateRecord(ctx context.Context, record *types.IntakeRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	query := `
	UPDATE records SET
		external_event_id = ?, status = ?, owner_id = ?, org_name = ?,
		contact_name = ?, contact_email = ?, contact_phone = ?,
		sandwich_count = ?, logistics = ?, notes = ?, event_date = ?,
		updated_at = ?
	WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query,
		stringToNull(record.ExternalEventID),
		string(record.Status),
		record.OwnerID,
		record.OrgName,
		record.ContactName,
		record.ContactEmail,
		record.ContactPhone,
		record.SandwichCount,
		record.Logistics,
		record.Notes,
		timeToNullString(record.EventDate),
		time.Now().UTC().Format(time.RFC3339),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", record.ID, err)
	}

	return nil
}

// UpdateRecordStatus sets only the status of a record. This is the one
// field the pull reconciler ever touches on an existing record.
func (db *DB) UpdateRecordStatus(ctx context.Context, id string, s types.Status) error {
	query := `UPDATE records SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.conn.ExecContext(ctx, query,
		string(s), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update status of record %s: %w", id, err)
	}
	return nil
}

// SetEventDate changes a record's event date and replaces its task plan
// in a single transaction: the old task set is deleted outright and the
// supplied tasks (the freshly computed plan) are inserted. Completion
// state on replaced tasks is intentionally discarded.
func (db *DB) SetEventDate(ctx context.Context, recordID string, eventDate time.Time, plan []*types.Task) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET event_date = ?, updated_at = ? WHERE id = ?`,
		eventDate.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		recordID,
	)
	if err != nil {
		return fmt.Errorf("failed to set event date on record %s: %w", recordID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE intake_id = ?`, recordID); err != nil {
		return fmt.Errorf("failed to clear task plan for record %s: %w", recordID, err)
	}

	for _, task := range plan {
		if err := insertTask(ctx, tx, task); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event date change: %w", err)
	}

	return nil
}

// GetRecordCount returns the total number of intake records.
func (db *DB) GetRecordCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get record count: %w", err)
	}
	return count, nil
}

// CountRecordsByStatus returns record counts grouped by status.
func (db *DB) CountRecordsByStatus(ctx context.Context) (map[types.Status]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[types.Status(s)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.IntakeRecord, error) {
	var record types.IntakeRecord
	var externalID sql.NullString
	var status string
	var eventDate sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&record.ID,
		&externalID,
		&status,
		&record.OwnerID,
		&record.OrgName,
		&record.ContactName,
		&record.ContactEmail,
		&record.ContactPhone,
		&record.SandwichCount,
		&record.Logistics,
		&record.Notes,
		&eventDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalID.Valid {
		record.ExternalEventID = externalID.String
	}
	record.Status = types.Status(status)
	record.EventDate = nullStringToTime(eventDate)

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		record.UpdatedAt = t
	}

	return &record, nil
}

func scanRecordRows(rows *sql.Rows) (*types.IntakeRecord, error) {
	record, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return record, nil
}
