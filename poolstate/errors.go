package poolstate

import "fmt"

// InvalidInputError is SimulationError::InvalidInput: used exclusively
// for the "sell amount exceeds limit" case. Carries the clamped result
// for callers who want to proceed with the limit instead of failing.
type InvalidInputError struct {
	Msg        string
	BestEffort *GetAmountOutResult
}

func (e *InvalidInputError) Error() string { return e.Msg }

// FatalError is SimulationError::FatalError: programmer error or
// corrupt state. The containing pool should be treated as dead.
type FatalError struct{ Msg string }

func (e *FatalError) Error() string { return "poolstate: fatal: " + e.Msg }

// TransitionError is a delta-decoding failure. The pool is marked
// stale; the stream continues.
type TransitionError struct{ Msg string }

func (e *TransitionError) Error() string { return "poolstate: transition: " + e.Msg }

// sellExceedsLimitMsg matches the exact wording of spec.md §8 scenario
// 5: "Sell amount exceeds limit <limit>".
func sellExceedsLimitMsg(limit string) string {
	return fmt.Sprintf("Sell amount exceeds limit %s", limit)
}
