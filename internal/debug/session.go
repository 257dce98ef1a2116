package debug

import (
	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a debug session.
type SessionState int

const (
	// StateUninitialized is the state before the initialize request.
	StateUninitialized SessionState = iota
	// StateInitialized is after initialize, before launch.
	StateInitialized
	// StateLaunched is after the runtime transport connected.
	StateLaunched
	// StateRunning is when the script is executing (optimistically).
	StateRunning
	// StateStopped is when the script is halted with a stop reason.
	StateStopped
	// StateTerminated is absorbing: the session has ended.
	StateTerminated
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateLaunched:
		return "launched"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StopReason is why execution halted.
type StopReason string

// Stop reasons reported by the runtime.
const (
	StopReasonEntry      StopReason = "entry"
	StopReasonStep       StopReason = "step"
	StopReasonBreakpoint StopReason = "breakpoint"
	StopReasonException  StopReason = "exception"
)

// Valid reports whether r is one of the known stop reasons.
func (r StopReason) Valid() bool {
	switch r {
	case StopReasonEntry, StopReasonStep, StopReasonBreakpoint, StopReasonException:
		return true
	}
	return false
}

// Session is the lifecycle state machine of one debug connection.
//
// Session is not safe for concurrent use; it is owned by the session loop.
type Session struct {
	id          string
	state       SessionState
	stopReason  StopReason
	sourceFile  string
	stopOnEntry bool

	onTransition func(old, new SessionState)
}

// NewSession creates a session in StateUninitialized with a fresh id.
func NewSession() *Session {
	return &Session{
		id:    uuid.New().String(),
		state: StateUninitialized,
	}
}

// OnTransition sets a callback invoked after every state change.
func (s *Session) OnTransition(fn func(old, new SessionState)) {
	s.onTransition = fn
}

// ID returns the session id used to correlate log lines.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() SessionState { return s.state }

// StopReason returns the reason of the most recent stop.
func (s *Session) StopReason() StopReason { return s.stopReason }

// SourceFile returns the active source file recorded at launch.
func (s *Session) SourceFile() string { return s.sourceFile }

// StopOnEntry reports the launch flag.
func (s *Session) StopOnEntry() bool { return s.stopOnEntry }

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool { return s.state == StateTerminated }

func (s *Session) setState(state SessionState) {
	old := s.state
	s.state = state
	if s.onTransition != nil && old != state {
		s.onTransition(old, state)
	}
}

func (s *Session) illegal(command string) error {
	return &IllegalTransitionError{Command: command, State: s.state}
}

// Initialize moves Uninitialized to Initialized.
func (s *Session) Initialize() error {
	if s.state != StateUninitialized {
		return s.illegal("initialize")
	}
	s.setState(StateInitialized)
	return nil
}

// CheckLaunch reports whether a launch may start, without changing state.
func (s *Session) CheckLaunch() error {
	if s.state != StateInitialized {
		return s.illegal("launch")
	}
	return nil
}

// Launched records the program and moves Initialized to Launched. It is
// called once the runtime transport has connected.
func (s *Session) Launched(program string, stopOnEntry bool) error {
	if err := s.CheckLaunch(); err != nil {
		return err
	}
	s.sourceFile = program
	s.stopOnEntry = stopOnEntry
	s.setState(StateLaunched)
	return nil
}

// Start moves Launched to Running, or to Stopped with StopReasonEntry when
// the launch asked to stop on entry. It reports whether the session stopped.
func (s *Session) Start() (bool, error) {
	if s.state != StateLaunched {
		return false, s.illegal("start")
	}
	if s.stopOnEntry {
		s.stopReason = StopReasonEntry
		s.setState(StateStopped)
		return true, nil
	}
	s.setState(StateRunning)
	return false, nil
}

// Stop records a stop notice. Running, Launched and Stopped move to Stopped.
func (s *Session) Stop(reason StopReason) error {
	switch s.state {
	case StateLaunched, StateRunning, StateStopped:
		s.stopReason = reason
		s.setState(StateStopped)
		return nil
	default:
		return s.illegal("stop(" + string(reason) + ")")
	}
}

// Resume validates an execution command (continue, reverseContinue, next,
// stepBack) and optimistically moves to Running. Running is accepted as a
// source state too since the runtime may still be finishing a step.
func (s *Session) Resume(command string) error {
	switch s.state {
	case StateStopped, StateRunning:
		s.stopReason = ""
		s.setState(StateRunning)
		return nil
	default:
		return s.illegal(command)
	}
}

// Terminate moves any state to Terminated. It reports whether this call
// performed the transition, so callers emit the terminated event once.
func (s *Session) Terminate() bool {
	if s.state == StateTerminated {
		return false
	}
	s.setState(StateTerminated)
	return true
}
