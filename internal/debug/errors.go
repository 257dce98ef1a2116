package debug

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrCorrelationConflict is returned when a stack request is started while
	// another one is still waiting for its answer.
	ErrCorrelationConflict = errors.New("stack request already outstanding")

	// ErrNotConnected is returned when a runtime command is issued before the
	// runtime transport has connected.
	ErrNotConnected = errors.New("runtime not connected")

	// ErrSessionTerminated is used to answer requests that were still held
	// when the session ended.
	ErrSessionTerminated = errors.New("debug session terminated")
)

// IllegalTransitionError reports a command that is not valid in the current
// session state. The command has no effect.
type IllegalTransitionError struct {
	Command string
	State   SessionState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Command, e.State)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var target *IllegalTransitionError
	return errors.As(err, &target)
}
