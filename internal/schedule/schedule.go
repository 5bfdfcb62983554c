// Package schedule derives the canonical follow-up task plan for an
// intake record from its creation timestamp and event date.
//
// Plan is a pure function: same inputs, same four tasks. It is invoked at
// record creation and again on every event-date change; the caller is
// responsible for deleting the previous task set first (the plan fully
// replaces it, completion state included).
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/outreachops/intakesync/internal/types"
)

// Offsets in calendar days. No timezone conversion beyond what the
// inputs already carry.
const (
	followUpAfterCreate = 2
	preEventLead        = 5
	reminderLead        = 3
	postEventLag        = 1
)

// Plan returns the canonical task set for a record, ordered by due date
// relative position in the workflow. A nil eventDate yields no tasks at
// all; the feature is gated entirely on having a date.
func Plan(intakeID string, createdAt time.Time, eventDate *time.Time) []*types.Task {
	if eventDate == nil {
		return nil
	}

	now := time.Now().UTC()
	event := *eventDate

	drafts := []struct {
		title string
		typ   types.TaskType
		due   time.Time
	}{
		{"Initial Follow-up", types.TaskFollowUp, createdAt.AddDate(0, 0, followUpAfterCreate)},
		{"Pre-Event Confirmation", types.TaskPreEvent, event.AddDate(0, 0, -preEventLead)},
		{"Final Reminder", types.TaskReminder, event.AddDate(0, 0, -reminderLead)},
		{"Post-Event Follow-up", types.TaskPostEvent, event.AddDate(0, 0, postEventLag)},
	}

	tasks := make([]*types.Task, 0, len(drafts))
	for _, d := range drafts {
		tasks = append(tasks, &types.Task{
			ID:        fmt.Sprintf("task-%s", uuid.NewString()),
			IntakeID:  intakeID,
			Title:     d.title,
			Type:      d.typ,
			DueDate:   d.due,
			CreatedAt: now,
		})
	}
	return tasks
}
