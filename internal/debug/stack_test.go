package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/luadap/internal/debug/runtime"
)

func TestSingleSlotCorrelator_Conflict(t *testing.T) {
	c := NewSingleSlotCorrelator()

	require.NoError(t, c.BeginStackRequest("first"))
	require.ErrorIs(t, c.BeginStackRequest("second"), ErrCorrelationConflict)
	require.True(t, c.Pending())

	token, _, ok := c.ResolveStackInfo(runtime.StackInfo{})
	require.True(t, ok)
	assert.Equal(t, "first", token)

	_, _, ok = c.ResolveStackInfo(runtime.StackInfo{})
	assert.False(t, ok, "expected nothing left to resolve")
}

func TestSingleSlotCorrelator_NoLevels(t *testing.T) {
	c := NewSingleSlotCorrelator()
	require.NoError(t, c.BeginStackRequest(1))

	_, result, ok := c.ResolveStackInfo(runtime.StackInfo{NumLevels: 0})
	require.True(t, ok)
	assert.Equal(t, 1, result.TotalFrames)
	require.Len(t, result.Frames, 1)

	frame := result.Frames[0]
	assert.Equal(t, 0, frame.Index)
	assert.Equal(t, "stack not available", frame.Name)
	assert.False(t, frame.HasSource())
	assert.False(t, c.Pending(), "slot should be cleared")
}

func TestSingleSlotCorrelator_WithSource(t *testing.T) {
	c := NewSingleSlotCorrelator()
	require.NoError(t, c.BeginStackRequest(1))

	_, result, ok := c.ResolveStackInfo(runtime.StackInfo{NumLevels: 3, SourceFile: "a.lua", Line: 10})
	require.True(t, ok)
	assert.Equal(t, 1, result.TotalFrames)
	require.Len(t, result.Frames, 1)

	frame := result.Frames[0]
	assert.Equal(t, "a.lua", frame.SourceFile)
	assert.Equal(t, 10, frame.Line)
	assert.Equal(t, "a.lua", frame.Name)
	assert.Equal(t, 11, DefaultLineConverter().ToClientLine(frame.Line))
}

func TestSingleSlotCorrelator_UnsolicitedDropped(t *testing.T) {
	c := NewSingleSlotCorrelator()

	_, _, ok := c.ResolveStackInfo(runtime.StackInfo{NumLevels: 1, SourceFile: "a.lua"})
	assert.False(t, ok, "unsolicited stack info should be dropped")
}

func TestSingleSlotCorrelator_Reset(t *testing.T) {
	c := NewSingleSlotCorrelator()

	_, ok := c.Reset()
	assert.False(t, ok, "nothing to reset")

	require.NoError(t, c.BeginStackRequest("held"))
	token, ok := c.Reset()
	require.True(t, ok)
	assert.Equal(t, "held", token)
	assert.False(t, c.Pending())
	assert.NoError(t, c.BeginStackRequest("next"), "new request accepted after reset")
}

func TestBuildStackTrace_WindowsPath(t *testing.T) {
	result := BuildStackTrace(runtime.StackInfo{NumLevels: 1, SourceFile: `C:\game\scripts\player.lua`, Line: 2})
	assert.Equal(t, "player.lua", result.Frames[0].Name)
}

func TestBuildStackTrace_UnknownSource(t *testing.T) {
	result := BuildStackTrace(runtime.StackInfo{NumLevels: 1})
	assert.Equal(t, "<unknown>", result.Frames[0].Name)
	assert.False(t, result.Frames[0].HasSource())
}

func TestLineConverter_RoundTrip(t *testing.T) {
	converters := []LineConverter{
		DefaultLineConverter(),
		{LinesStartAt1: false, ColumnsStartAt1: false},
	}

	for _, c := range converters {
		for l := 1; l < 500; l++ {
			require.Equal(t, l, c.ToClientLine(c.ToInternalLine(l)), "%+v line", c)
			require.Equal(t, l, c.ToClientColumn(c.ToInternalColumn(l)), "%+v column", c)
		}
	}

	assert.Equal(t, 0, DefaultLineConverter().ToInternalLine(1))
}
