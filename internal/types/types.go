// Package types defines the core domain types shared across intakesync:
// intake records, scheduled tasks, and sync audit entries.
package types

import (
	"fmt"
	"time"
)

// Status is the local workflow status of an intake record.
//
// Statuses are totally ordered (see internal/status) and synchronization
// may only move a record forward through this order, never backward.
type Status string

const (
	StatusNew       Status = "New"
	StatusInProcess Status = "In Process"
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
)

// IsValid reports whether s is one of the four known local statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProcess, StatusScheduled, StatusCompleted:
		return true
	}
	return false
}

// TaskType classifies a scheduled follow-up task.
type TaskType string

const (
	TaskFollowUp  TaskType = "follow_up"
	TaskPreEvent  TaskType = "pre_event"
	TaskReminder  TaskType = "reminder"
	TaskPostEvent TaskType = "post_event"
)

// IntakeRecord is the unit of work: one event intake request.
//
// A record with a non-empty ExternalEventID originated on the remote
// platform (imported by pull) and is the only kind of record that can be
// pushed back. At most one local record holds a given external event id;
// the store enforces this with a unique index.
type IntakeRecord struct {
	ID string `json:"id"`

	// ExternalEventID is the remote platform's identifier for this
	// request. Empty for locally created records.
	ExternalEventID string `json:"external_event_id,omitempty"`

	Status  Status `json:"status"`
	OwnerID string `json:"owner_id"`

	// Operational fields copied from the remote request at import time
	// or entered locally. None of these affect sync decisions.
	OrgName       string `json:"org_name,omitempty"`
	ContactName   string `json:"contact_name,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty"`
	ContactPhone  string `json:"contact_phone,omitempty"`
	SandwichCount int    `json:"sandwich_count,omitempty"`
	Logistics     string `json:"logistics,omitempty"`
	Notes         string `json:"notes,omitempty"`

	// EventDate is the day the event takes place. Setting or changing it
	// regenerates the record's task plan from scratch.
	EventDate *time.Time `json:"event_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields on the record.
func (r *IntakeRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.OrgName == "" && r.ContactName == "" {
		return fmt.Errorf("record needs an organization or contact name")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", r.Status)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Task is a scheduled follow-up tied to exactly one intake record.
//
// The live task set for a record with an event date is exactly the four
// canonical tasks produced by internal/schedule; changing the event date
// replaces the whole set.
type Task struct {
	ID        string    `json:"id"`
	IntakeID  string    `json:"intake_id"`
	Title     string    `json:"title"`
	Type      TaskType  `json:"type"`
	DueDate   time.Time `json:"due_date"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks required fields on the task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.IntakeID == "" {
		return fmt.Errorf("intake_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	switch t.Type {
	case TaskFollowUp, TaskPreEvent, TaskReminder, TaskPostEvent:
	default:
		return fmt.Errorf("invalid task type: %q", t.Type)
	}
	if t.DueDate.IsZero() {
		return fmt.Errorf("due_date is required")
	}
	return nil
}

// SyncDirection labels a sync audit entry as a pull or a push.
type SyncDirection string

const (
	DirectionPull SyncDirection = "pull"
	DirectionPush SyncDirection = "push"
)

// SyncOutcome is the result classification of a sync attempt.
type SyncOutcome string

const (
	OutcomeSuccess SyncOutcome = "success"
	OutcomeError   SyncOutcome = "error"
)

// SyncLogEntry is one append-only audit row: the outcome of a single pull
// or push invocation. Entries are never mutated or deleted.
type SyncLogEntry struct {
	ID          int64         `json:"id"`
	Direction   SyncDirection `json:"direction"`
	RecordCount int           `json:"record_count"`
	Outcome     SyncOutcome   `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
