package sync

import "context"

// User identifies the person triggering a sync operation.
type User struct {
	// ID is the local user id; imported records are owned by it.
	ID string

	// RemoteID is the platform's id for this user, resolved once via
	// the lookup endpoint. Pull requires it.
	RemoteID string

	// Admin users may push records they don't own.
	Admin bool
}

// PullResult summarizes one pull invocation.
type PullResult struct {
	// Imported is the number of remote requests that became new local
	// records.
	Imported int

	// Updated is the number of existing local records whose status was
	// advanced from a remote signal.
	Updated int
}

// Total is the record count written to the audit log.
func (r PullResult) Total() int {
	return r.Imported + r.Updated
}

// PushResult summarizes one push invocation.
type PushResult struct {
	// ExternalEventID is the platform resource that was updated.
	ExternalEventID string
}

// Syncer coordinates the local store and the remote platform.
//
// All methods audit themselves: one sync log entry per invocation
// regardless of outcome, except when a precondition fails before any
// wire call could happen.
type Syncer interface {
	// Pull reconciles the platform's listing of requests assigned to
	// user into the local store. Returns ErrNotLinked without a wire
	// call when the user has no remote account id.
	Pull(ctx context.Context, user User) (*PullResult, error)

	// Push publishes one remote-sourced record's current state to the
	// platform, with status forced to "scheduled" in the remote
	// vocabulary. Push never mutates local status; the caller is
	// expected to have set it to Scheduled beforehand.
	Push(ctx context.Context, recordID string, user User) (*PushResult, error)

	// MarkInProcess sends the lightweight "this request is being
	// worked" nudge to the platform for a remote-sourced record.
	MarkInProcess(ctx context.Context, recordID string, user User) error
}
