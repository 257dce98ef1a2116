package debug

import (
	"github.com/dshills/luadap/internal/debug/runtime"
)

// NoStackFrameName labels the synthetic frame returned when the runtime
// reports no stack levels.
const NoStackFrameName = "stack not available"

// StackFrame is one frame of a stack trace in internal numbering.
type StackFrame struct {
	// Index is the frame position, 0 for the innermost frame.
	Index int

	// Name is the label shown for the frame.
	Name string

	// SourceFile is the runtime-reported script path, empty when unknown.
	SourceFile string

	// Line is the 0-based line in SourceFile.
	Line int
}

// HasSource reports whether the frame refers to a source file.
func (f StackFrame) HasSource() bool {
	return f.SourceFile != ""
}

// StackTraceResult is the answer to one stack trace request.
//
// The runtime only ever reports the innermost frame, so Frames holds at most
// one element until the wire protocol carries deeper frames.
type StackTraceResult struct {
	Frames      []StackFrame
	TotalFrames int
}

// StackCorrelator matches an outstanding stack query to the runtime's answer.
// The current wire protocol carries no request ids; an implementation for a
// future id-carrying protocol can replace SingleSlotCorrelator without
// changing the Adapter.
type StackCorrelator interface {
	// BeginStackRequest records token as waiting for an answer.
	BeginStackRequest(token any) error

	// ResolveStackInfo builds the answer for the outstanding request. ok is
	// false when nothing was outstanding and msg was dropped.
	ResolveStackInfo(msg runtime.StackInfo) (token any, result StackTraceResult, ok bool)

	// Pending reports whether a request is outstanding.
	Pending() bool

	// Reset drops the outstanding request and returns its token, if any.
	Reset() (token any, ok bool)
}

// SingleSlotCorrelator allows exactly one outstanding stack request: the
// channel to the runtime is treated as half-duplex for this query type.
type SingleSlotCorrelator struct {
	awaiting bool
	token    any
}

// NewSingleSlotCorrelator creates an idle correlator.
func NewSingleSlotCorrelator() *SingleSlotCorrelator {
	return &SingleSlotCorrelator{}
}

// BeginStackRequest implements StackCorrelator. A second call while a request
// is outstanding returns ErrCorrelationConflict and keeps the first token.
func (c *SingleSlotCorrelator) BeginStackRequest(token any) error {
	if c.awaiting {
		return ErrCorrelationConflict
	}
	c.awaiting = true
	c.token = token
	return nil
}

// ResolveStackInfo implements StackCorrelator.
func (c *SingleSlotCorrelator) ResolveStackInfo(msg runtime.StackInfo) (any, StackTraceResult, bool) {
	if !c.awaiting {
		return nil, StackTraceResult{}, false
	}

	token := c.token
	c.awaiting = false
	c.token = nil

	return token, BuildStackTrace(msg), true
}

// Pending implements StackCorrelator.
func (c *SingleSlotCorrelator) Pending() bool {
	return c.awaiting
}

// Reset implements StackCorrelator.
func (c *SingleSlotCorrelator) Reset() (any, bool) {
	if !c.awaiting {
		return nil, false
	}
	token := c.token
	c.awaiting = false
	c.token = nil
	return token, true
}

// BuildStackTrace converts a runtime stack report into a single-frame trace.
func BuildStackTrace(msg runtime.StackInfo) StackTraceResult {
	if msg.NumLevels == 0 {
		return StackTraceResult{
			Frames:      []StackFrame{{Index: 0, Name: NoStackFrameName}},
			TotalFrames: 1,
		}
	}

	name := "<unknown>"
	if msg.SourceFile != "" {
		name = sourceName(msg.SourceFile)
	}

	return StackTraceResult{
		Frames: []StackFrame{{
			Index:      0,
			Name:       name,
			SourceFile: msg.SourceFile,
			Line:       msg.Line,
		}},
		TotalFrames: 1,
	}
}
