package reconcile

import (
	"context"

	"encodesync/internal/assets"
	"encodesync/internal/events"
)

// Outcome describes what Apply did with an event.
type Outcome int

const (
	// OutcomeApplied means the asset changed and was committed.
	OutcomeApplied Outcome = iota
	// OutcomeStale means the event named a job other than the current one.
	OutcomeStale
	// OutcomeTerminal means the current job already reached ready or failed.
	OutcomeTerminal
	// OutcomeIgnored means the event was valid but changed nothing.
	OutcomeIgnored
	// OutcomeDeferred means a completion could not be applied because no
	// output location is known yet.
	OutcomeDeferred
	// OutcomeUnknownAsset means no asset exists for the event.
	OutcomeUnknownAsset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeUnknownAsset:
		return "unknown_asset"
	default:
		return "unknown"
	}
}

// Transition is handed to listeners after a committed change.
type Transition struct {
	Previous assets.Status
	Asset    *assets.Asset
	// Event is the zero value for transitions started by BeginAttempt.
	Event events.Event
}

// StatusChanged reports whether the commit moved the asset to a new status.
func (t Transition) StatusChanged() bool {
	return t.Asset != nil && t.Previous != t.Asset.Status
}

// Listener observes committed transitions. Listeners run after the asset
// lock is released and may call back into the Reconciler.
type Listener interface {
	OnTransition(ctx context.Context, t Transition)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, t Transition)

func (f ListenerFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }
