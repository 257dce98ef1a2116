package debug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionState_String(t *testing.T) {
	tests := []struct {
		state    SessionState
		expected string
	}{
		{StateUninitialized, "uninitialized"},
		{StateInitialized, "initialized"},
		{StateLaunched, "launched"},
		{StateRunning, "running"},
		{StateStopped, "stopped"},
		{StateTerminated, "terminated"},
		{SessionState(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}

func TestNewSession(t *testing.T) {
	s := NewSession()

	assert.Equal(t, StateUninitialized, s.State())
	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, s.ID(), NewSession().ID(), "session ids should be distinct")
}

func TestSession_LaunchLifecycle(t *testing.T) {
	s := NewSession()

	var transitions []SessionState
	s.OnTransition(func(old, new SessionState) {
		transitions = append(transitions, new)
	})

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Launched("main.lua", false))
	stopped, err := s.Start()
	require.NoError(t, err)
	assert.False(t, stopped, "expected running without stopOnEntry")
	assert.Equal(t, "main.lua", s.SourceFile())

	require.NoError(t, s.Stop(StopReasonBreakpoint))
	assert.Equal(t, StopReasonBreakpoint, s.StopReason())
	require.NoError(t, s.Resume("continue"))

	want := []SessionState{StateInitialized, StateLaunched, StateRunning, StateStopped, StateRunning}
	assert.Equal(t, want, transitions)
}

func TestSession_StopOnEntry(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Launched("main.lua", true))

	stopped, err := s.Start()
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, StopReasonEntry, s.StopReason())
}

func TestSession_StopWhileStopped(t *testing.T) {
	s := NewSession()
	s.Initialize()
	s.Launched("main.lua", true)
	s.Start()

	require.NoError(t, s.Stop(StopReasonStep))
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, StopReasonStep, s.StopReason())
}

func TestSession_ResumeFromRunning(t *testing.T) {
	s := NewSession()
	s.Initialize()
	s.Launched("main.lua", false)
	s.Start()

	assert.NoError(t, s.Resume("next"), "resume from running should be accepted")
}

func TestSession_IllegalTransitions(t *testing.T) {
	s := NewSession()

	assert.True(t, IsIllegalTransition(s.Resume("continue")), "continue before launch")
	assert.True(t, IsIllegalTransition(s.CheckLaunch()), "launch before initialize")
	assert.True(t, IsIllegalTransition(s.Stop(StopReasonStep)), "stop before launch")

	s.Initialize()
	assert.True(t, IsIllegalTransition(s.Initialize()), "second initialize")

	s.Launched("main.lua", false)
	s.Start()
	s.Terminate()

	err := s.Resume("continue")
	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal), "got %v", err)
	assert.Equal(t, StateTerminated, illegal.State)
	assert.Equal(t, "continue", illegal.Command)
	assert.EqualError(t, err, "continue not allowed while terminated")
	assert.Equal(t, StateTerminated, s.State(), "illegal transition must not change state")
}

func TestSession_TerminateOnce(t *testing.T) {
	s := NewSession()

	assert.True(t, s.Terminate(), "first Terminate should transition")
	assert.False(t, s.Terminate(), "second Terminate should be a no-op")
	assert.True(t, s.Terminated())
}

func TestStopReason_Valid(t *testing.T) {
	for _, r := range []StopReason{StopReasonEntry, StopReasonStep, StopReasonBreakpoint, StopReasonException} {
		assert.True(t, r.Valid(), "%q should be valid", r)
	}
	assert.False(t, StopReason("pause").Valid())
}
