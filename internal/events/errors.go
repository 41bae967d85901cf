package events

import "fmt"

// DecodeError describes a stream frame that could not be parsed.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame of %d bytes: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationGap is raised when an event references something the client does not know
// or lacks a field it should carry. The event is still applied as far as possible.
type ValidationGap struct {
	Kind   string
	Entity string
	ID     string
	Reason string
}

func (e *ValidationGap) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s: %s [%s] %s", e.Kind, e.Entity, e.ID, e.Reason)
}
