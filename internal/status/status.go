// Package status defines the closed set of status codes the motion core
// returns across its external boundary, and the error values that wrap
// the non-recoverable ones.
package status

import "fmt"

// Status is the result of a CORE entry point. Status != Ok, Again, Noop
// means the caller should treat the accompanying error as non-nil.
type Status int

const (
	Ok Status = iota
	Again
	Noop
	QueueFull
	ZeroLength
	MoveTimeInfinite
	MoveTimeNaN
	PlannerAssertion
	StepperAssertion
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Again:
		return "again"
	case Noop:
		return "noop"
	case QueueFull:
		return "queue_full"
	case ZeroLength:
		return "zero_length"
	case MoveTimeInfinite:
		return "move_time_infinite"
	case MoveTimeNaN:
		return "move_time_nan"
	case PlannerAssertion:
		return "planner_assertion"
	case StepperAssertion:
		return "stepper_assertion"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Recoverable reports whether the caller should simply retry (Again) or
// treat the call as a no-op rather than a failure.
func (s Status) Recoverable() bool {
	return s == Ok || s == Again || s == Noop
}

// Err wraps a Status as an error, or returns nil for the non-error
// codes, so every (Status, error) pair at the boundary carries a non-nil
// error exactly when the status is a failure.
func Err(s Status) error {
	if s.Recoverable() {
		return nil
	}
	return &Error{Status: s}
}

// Errf wraps a Status as an error with additional context, for
// assertion and motion failures that have a detail worth surfacing.
func Errf(s Status, format string, args ...interface{}) error {
	if s.Recoverable() {
		return nil
	}
	return &Error{Status: s, Detail: fmt.Sprintf(format, args...)}
}

// Error is the concrete error type carried alongside a non-recoverable
// Status.
type Error struct {
	Status Status
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Detail)
}

// Assertion reports whether s is an invariant violation. Assertions are
// latched, never caught and resumed.
func (s Status) Assertion() bool {
	return s == PlannerAssertion || s == StepperAssertion
}
