package discussion

import (
	"errors"
	"fmt"
)

// ErrInvalidAction marks an action that was not executed because its
// preconditions did not hold. It is reported to the caller, never as a failure.
var ErrInvalidAction = errors.New("invalid action")

// Kind says which step of a turn failed.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindScoring    Kind = "scoring"
)

// RoundError aborts a round. Turns appended before it stay in the transcript.
type RoundError struct {
	Persona string
	Kind    Kind
	Round   int
	Err     error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d: %s failed for %s: %v", e.Round, e.Kind, e.Persona, e.Err)
}

func (e *RoundError) Unwrap() error { return e.Err }

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, reason)
}
