package sync

import "errors"

// Classified failures surfaced by Pull and Push. The platform package
// contributes ErrNotConfigured, ErrRemoteUnavailable and
// ErrRemoteRejected; the boundary layer picks user-facing wording off
// these with errors.Is.
var (
	// ErrNotLinked means the calling user has no linked remote account
	// id. Configuration problem; no wire call is attempted.
	ErrNotLinked = errors.New("user has no linked remote account")

	// ErrRecordNotFound means the record id doesn't exist locally.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNotRemoteSourced means the record was never imported from the
	// platform and therefore cannot be pushed to it.
	ErrNotRemoteSourced = errors.New("record is not remote-sourced")

	// ErrForbidden means the caller is neither the record's owner nor
	// an admin.
	ErrForbidden = errors.New("caller does not own this record")

	// ErrSyncFailed wraps unexpected failures during reconciliation
	// that aren't one of the remote-call classes.
	ErrSyncFailed = errors.New("sync failed")
)
