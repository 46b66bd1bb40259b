package models

import (
	"errors"
	"fmt"
)

// Collaborator failures are converted to one of these outcomes at the
// boundary; none propagate as uncaught faults out of the decision loop.
var (
	// ErrDataUnavailable means indicator input could not be fetched or is too
	// short this tick. The tick degrades to a no-op.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrOrderRejected means the gateway refused an entry request. The slot
	// stays Idle and no retry happens within the same tick.
	ErrOrderRejected = errors.New("order rejected")

	// ErrStaleFill means a status query did not answer; the order is treated
	// as still Pending until the auto-cancel timeout elapses.
	ErrStaleFill = errors.New("order status unavailable")
)

// InvariantError reports an attempted illegal lifecycle transition. It aborts
// the mutation for that tick only and never corrupts stored state.
type InvariantError struct {
	From PositionState
	To   PositionState
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid position transition %s -> %s", e.From, e.To)
}
