// Package status implements the workflow status rank model and the
// translation table between the local status vocabulary (Title Case) and
// the remote platform's vocabulary (lowercase with underscores).
//
// The rank model encodes the one rule synchronization lives by: a record
// only ever moves forward through New -> In Process -> Scheduled ->
// Completed. A remote-observed status may overwrite a local one only when
// its rank is strictly greater.
package status

import "github.com/outreachops/intakesync/internal/types"

// ranks is the total order over local statuses. Unknown labels fall back
// to rank 0 (treated as New).
var ranks = map[types.Status]int{
	types.StatusNew:       0,
	types.StatusInProcess: 1,
	types.StatusScheduled: 2,
	types.StatusCompleted: 3,
}

// Rank returns the ordinal position of s in the workflow order.
// Unmapped statuses rank 0.
func Rank(s types.Status) int {
	return ranks[s]
}

// ShouldAdvance reports whether a record currently at local may be moved
// to remote: true only when remote ranks strictly higher.
func ShouldAdvance(local, remote types.Status) bool {
	return Rank(remote) > Rank(local)
}

// fromRemote and toRemote are two views of one translation table. Keep
// them in lockstep with ranks above.
var fromRemote = map[string]types.Status{
	"new":        types.StatusNew,
	"in_process": types.StatusInProcess,
	"scheduled":  types.StatusScheduled,
	"completed":  types.StatusCompleted,
}

var toRemote = map[types.Status]string{
	types.StatusNew:       "new",
	types.StatusInProcess: "in_process",
	types.StatusScheduled: "scheduled",
	types.StatusCompleted: "completed",
}

// FromRemote translates a remote status label into the local vocabulary.
// Unknown labels translate to New.
func FromRemote(remote string) types.Status {
	if s, ok := fromRemote[remote]; ok {
		return s
	}
	return types.StatusNew
}

// ToRemote translates a local status into the remote vocabulary.
// Unknown statuses translate to "new".
func ToRemote(s types.Status) string {
	if r, ok := toRemote[s]; ok {
		return r
	}
	return "new"
}
