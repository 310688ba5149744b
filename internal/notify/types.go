// Package notify implements the per-sync-cycle notification fan-out
// described in SPEC_FULL.md §4.11: Slack and generic webhook sinks fed a
// summary of one coordinator tick.
package notify

import "context"

// Event summarizes the outcome of one synchronization loop iteration.
type Event struct {
	RunID       string
	Fileset     string
	Destination string
	Downloaded  int
	Pruned      int
	Err         error
}

// Notifier delivers an Event to some external sink. Implementations must
// not block the caller indefinitely; ctx carries whatever deadline the
// coordinator's tick is willing to spend on notification.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// MultiNotifier fans Notify out to every member, continuing past
// individual failures so one broken sink never silences the others.
type MultiNotifier struct {
	Notifiers []Notifier
}

func (m *MultiNotifier) Notify(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range m.Notifiers {
		if err := n.Notify(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
