package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/outreachops/intakesync/internal/platform"
	"github.com/outreachops/intakesync/internal/schedule"
	"github.com/outreachops/intakesync/internal/status"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

// pullStatuses is the remote status filter for listing: completed
// requests are never imported or updated.
var pullStatuses = []string{"new", "in_process", "scheduled"}

// syncer implements the Syncer interface.
type syncer struct {
	db     *store.DB
	client *platform.Client
	logger *log.Logger
}

// New creates a new Syncer instance.
//
// The store must be initialized with schema before passing to this
// function. If logger is nil, a default logger writing to stderr is used.
func New(db *store.DB, client *platform.Client, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:     db,
		client: client,
		logger: logger,
	}
}

// Pull implements Syncer.Pull.
func (s *syncer) Pull(ctx context.Context, user User) (*PullResult, error) {
	if user.RemoteID == "" {
		return nil, fmt.Errorf("%w: link your account first", ErrNotLinked)
	}

	result, err := s.pull(ctx, user)
	if err != nil {
		s.audit(ctx, types.DirectionPull, 0, err)
		return nil, err
	}

	s.audit(ctx, types.DirectionPull, result.Total(), nil)
	s.logger.Printf("Pull complete: imported=%d updated=%d", result.Imported, result.Updated)
	return result, nil
}

func (s *syncer) pull(ctx context.Context, user User) (*PullResult, error) {
	requests, err := s.client.ListRequests(ctx, user.RemoteID, pullStatuses)
	if err != nil {
		return nil, err
	}

	index, err := s.db.ListRecordsWithExternalID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	var result PullResult
	for _, req := range requests {
		if req.ID == "" {
			s.logger.Printf("WARNING: skipping remote request with no id")
			continue
		}

		local := status.FromRemote(req.Status)

		if existing, ok := index[req.ID]; ok {
			if !status.ShouldAdvance(existing.Status, local) {
				continue
			}
			if err := s.db.UpdateRecordStatus(ctx, existing.ID, local); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
			}
			s.logger.Printf("Advanced record %s: %s -> %s", existing.ID, existing.Status, local)
			result.Updated++
			continue
		}

		if err := s.importRequest(ctx, req, local, user); err != nil {
			if store.IsUniqueViolation(err) {
				// A concurrent pull got there first. Already imported.
				s.logger.Printf("Record for remote event %s already exists, skipping", req.ID)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
		}
		result.Imported++
	}

	return &result, nil
}

// importRequest creates a local record from a remote event request and
// schedules its task plan when an event date is present.
func (s *syncer) importRequest(ctx context.Context, req *platform.EventRequest, local types.Status, user User) error {
	now := time.Now().UTC()
	record := &types.IntakeRecord{
		ID:              fmt.Sprintf("rec-%s", uuid.NewString()),
		ExternalEventID: req.ID,
		Status:          local,
		OwnerID:         user.ID,
		OrgName:         req.OrgName,
		ContactName:     req.ContactName,
		ContactEmail:    req.ContactEmail,
		ContactPhone:    req.ContactPhone,
		SandwichCount:   req.SandwichCount,
		Logistics:       req.Logistics,
		Notes:           fmt.Sprintf("[imported from platform on %s]", now.Format("2006-01-02")),
		EventDate:       req.EventDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if record.OrgName == "" && record.ContactName == "" {
		record.OrgName = fmt.Sprintf("Remote event %s", req.ID)
	}

	if err := s.db.CreateRecordContext(ctx, record); err != nil {
		return err
	}

	if plan := schedule.Plan(record.ID, record.CreatedAt, record.EventDate); len(plan) > 0 {
		if err := s.db.InsertTasks(ctx, plan); err != nil {
			return err
		}
	}

	s.logger.Printf("Imported record %s from remote event %s", record.ID, req.ID)
	return nil
}

// Push implements Syncer.Push.
func (s *syncer) Push(ctx context.Context, recordID string, user User) (*PushResult, error) {
	record, err := s.loadPushable(ctx, recordID, user)
	if err != nil {
		// Precondition failures happen before any wire call and are
		// not audited.
		return nil, err
	}

	payload := map[string]interface{}{
		"status":           "scheduled",
		"organizationName": record.OrgName,
		"contactName":      record.ContactName,
		"contactEmail":     record.ContactEmail,
		"contactPhone":     record.ContactPhone,
		"sandwichCount":    record.SandwichCount,
		"logistics":        record.Logistics,
		"notes":            record.Notes,
	}
	if record.EventDate != nil {
		payload["eventDate"] = record.EventDate.Format("2006-01-02")
	}

	if err := s.client.UpdateRequest(ctx, record.ExternalEventID, payload); err != nil {
		s.audit(ctx, types.DirectionPush, 0, err)
		return nil, err
	}

	s.audit(ctx, types.DirectionPush, 1, nil)
	s.logger.Printf("Pushed record %s to remote event %s", record.ID, record.ExternalEventID)
	return &PushResult{ExternalEventID: record.ExternalEventID}, nil
}

// MarkInProcess implements Syncer.MarkInProcess.
func (s *syncer) MarkInProcess(ctx context.Context, recordID string, user User) error {
	record, err := s.loadPushable(ctx, recordID, user)
	if err != nil {
		return err
	}

	if err := s.client.UpdateRequest(ctx, record.ExternalEventID, map[string]interface{}{
		"status": "in_process",
	}); err != nil {
		s.audit(ctx, types.DirectionPush, 0, err)
		return err
	}

	s.audit(ctx, types.DirectionPush, 1, nil)
	s.logger.Printf("Marked remote event %s in_process", record.ExternalEventID)
	return nil
}

// loadPushable checks push preconditions in order: the record exists, it
// is remote-sourced, and the caller may act on it.
func (s *syncer) loadPushable(ctx context.Context, recordID string, user User) (*types.IntakeRecord, error) {
	record, err := s.db.GetRecordContext(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
		}
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	if record.ExternalEventID == "" {
		return nil, fmt.Errorf("%w: %s was created locally", ErrNotRemoteSourced, recordID)
	}

	if record.OwnerID != user.ID && !user.Admin {
		return nil, fmt.Errorf("%w: %s belongs to %s", ErrForbidden, recordID, record.OwnerID)
	}

	return record, nil
}

// audit appends exactly one sync log entry for an invocation. Audit
// failures are logged but never mask the sync outcome.
func (s *syncer) audit(ctx context.Context, direction types.SyncDirection, count int, syncErr error) {
	entry := &types.SyncLogEntry{
		Direction:   direction,
		RecordCount: count,
		Outcome:     types.OutcomeSuccess,
	}
	if syncErr != nil {
		entry.Outcome = types.OutcomeError
		entry.Error = syncErr.Error()
	}

	if err := s.db.AppendSyncLog(ctx, entry); err != nil {
		s.logger.Printf("WARNING: failed to append sync log entry: %v", err)
	}
}
