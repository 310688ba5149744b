// Package download implements the bounded-concurrency download manager
// described in SPEC_FULL.md §4.5: a coordinator that tracks pending,
// active, and cooling-down jobs keyed by file descriptor, and schedules
// coarsest-first so a consumer never sees a window where only fine-grained
// buckets have landed.
package download

import "github.com/farsightsec/fileset-sync/internal/fileset"

// State is a job's position in the lifecycle pending -> active ->
// (forgotten on success, or cooling-down -> forgotten on failure).
type State int

const (
	Pending State = iota
	Active
	CoolingDown
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case CoolingDown:
		return "cooling-down"
	default:
		return "unknown"
	}
}

// job is the coordinator's bookkeeping record for one file descriptor in
// flight. It is never exposed outside the package; callers only see
// Manager's enqueue/membership surface.
type job struct {
	descriptor fileset.Descriptor
	state      State
	cancel     func() // cancels the in-flight worker, if Active
}
