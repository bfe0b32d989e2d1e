package service

import (
	"fmt"
	"time"
)

// ValidationError rejects malformed input before any shared state is touched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports that a requested interval overlaps an existing
// reservation. It carries the blocking window so callers can propose
// alternatives; the request is never silently adjusted.
type ConflictError struct {
	Start time.Time
	End   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested window overlaps existing reservation [%s, %s)",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// NotFoundError indicates an unknown id or that no charger can satisfy a
// recommendation request.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func notFoundf(format string, args ...interface{}) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidStateTransitionError indicates an action applied in a state that does
// not permit it, e.g. starting a session that is not ready_to_start.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s in state %q does not allow %q", e.Entity, e.From, e.Action)
}
