// Package sync implements the two halves of intake synchronization
// against the remote event platform.
//
// Pull is a fan-in: the platform's listing of requests assigned to the
// calling user is reconciled into the local store. Requests never seen
// before are imported; requests already imported may only have their
// status advanced, and only forward through the workflow order (local
// work is authoritative once done). Pull is idempotent: re-running it
// against an unchanged listing imports nothing.
//
// Push is a fan-out: one remote-sourced record's current state is
// published back to the platform, after ownership checks.
//
// Every pull or push invocation, successful or not, appends exactly one
// entry to the sync audit log. Synchronization is user-triggered; nothing
// in this package polls in the background.
package sync
