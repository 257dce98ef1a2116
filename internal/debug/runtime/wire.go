// Package runtime implements the connection to the MyEngine Lua runtime.
//
// The runtime speaks newline-delimited records over a plain TCP socket.
// Outbound commands are bare keywords or small JSON objects; inbound records
// are JSON objects told apart by which fields they carry. There are no
// request ids on the wire.
package runtime

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Message is a decoded inbound record. It is one of StackInfo, StopNotice,
// OutputNotice or EndNotice.
type Message interface {
	isRuntimeMessage()
}

// StackInfo answers a StackQuery. The runtime reports only the innermost
// frame. Line is 0-based.
type StackInfo struct {
	NumLevels  int
	SourceFile string
	Line       int
}

// StopNotice reports that execution halted.
type StopNotice struct {
	Reason string
}

// OutputNotice carries a line printed by the script. Line and Column are
// 0-based.
type OutputNotice struct {
	Text   string
	File   string
	Line   int
	Column int
}

// EndNotice reports that the script finished and the session is over.
type EndNotice struct{}

func (StackInfo) isRuntimeMessage()    {}
func (StopNotice) isRuntimeMessage()   {}
func (OutputNotice) isRuntimeMessage() {}
func (EndNotice) isRuntimeMessage()    {}

// Inbound field names. Casing matches what the engine emits.
const (
	fieldStackNumLevels = "StackNumLevels"
	fieldSource         = "Source"
	fieldLine           = "Line"
	fieldColumn         = "Column"
	fieldStopped        = "Stopped"
	fieldOutput         = "Output"
	fieldFile           = "File"
	fieldEnd            = "End"
)

var stopReasons = map[string]bool{
	"entry":      true,
	"step":       true,
	"breakpoint": true,
	"exception":  true,
}

// Decode classifies and decodes one inbound record. The StackNumLevels field
// takes precedence; other records are recognized by their named field.
func Decode(record []byte) (Message, error) {
	record = bytes.TrimSpace(record)
	if !gjson.ValidBytes(record) {
		return nil, decodeError(record, "invalid JSON")
	}

	doc := gjson.ParseBytes(record)
	if !doc.IsObject() {
		return nil, decodeError(record, "record is not an object")
	}

	if levels := doc.Get(fieldStackNumLevels); levels.Exists() {
		if levels.Type != gjson.Number {
			return nil, decodeError(record, "StackNumLevels is not a number")
		}
		return StackInfo{
			NumLevels:  int(levels.Int()),
			SourceFile: doc.Get(fieldSource).String(),
			Line:       int(doc.Get(fieldLine).Int()),
		}, nil
	}

	if stopped := doc.Get(fieldStopped); stopped.Exists() {
		reason := stopped.String()
		if !stopReasons[reason] {
			return nil, decodeError(record, fmt.Sprintf("unknown stop reason %q", reason))
		}
		return StopNotice{Reason: reason}, nil
	}

	if output := doc.Get(fieldOutput); output.Exists() {
		if output.Type != gjson.String {
			return nil, decodeError(record, "Output is not a string")
		}
		return OutputNotice{
			Text:   output.String(),
			File:   doc.Get(fieldFile).String(),
			Line:   int(doc.Get(fieldLine).Int()),
			Column: int(doc.Get(fieldColumn).Int()),
		}, nil
	}

	if doc.Get(fieldEnd).Exists() {
		return EndNotice{}, nil
	}

	return nil, decodeError(record, "unrecognized record")
}

// Command is an outbound instruction to the runtime.
type Command interface {
	// Encode returns the record without the trailing newline.
	Encode() ([]byte, error)
}

// Continue resumes execution until the next breakpoint.
type Continue struct{}

// ReverseContinue asks the runtime to run backwards.
type ReverseContinue struct{}

// Step executes one line.
type Step struct{}

// StepBack asks the runtime to undo one line.
type StepBack struct{}

// StackQuery requests stack frames [Start, End).
type StackQuery struct {
	Start int
	End   int
}

// Start tells the runtime which program the session debugs.
type Start struct {
	Program     string
	StopOnEntry bool
}

// SetBreakpoints replaces the runtime's breakpoints for File. Lines are
// 0-based.
type SetBreakpoints struct {
	File  string
	Lines []int
}

// RawText is written to the socket unchanged.
type RawText struct {
	Text string
}

// Encode implements Command.
func (Continue) Encode() ([]byte, error) { return []byte("continue"), nil }

// Encode implements Command.
func (ReverseContinue) Encode() ([]byte, error) { return []byte("reversecontinue"), nil }

// Encode implements Command.
func (Step) Encode() ([]byte, error) { return []byte("step"), nil }

// Encode implements Command.
func (StepBack) Encode() ([]byte, error) { return []byte("stepback"), nil }

// Encode implements Command.
func (q StackQuery) Encode() ([]byte, error) {
	out, err := sjson.SetBytes(nil, "stackstart", q.Start)
	if err != nil {
		return nil, fmt.Errorf("encode stack query: %w", err)
	}
	out, err = sjson.SetBytes(out, "stackend", q.End)
	if err != nil {
		return nil, fmt.Errorf("encode stack query: %w", err)
	}
	return out, nil
}

// Encode implements Command.
func (s Start) Encode() ([]byte, error) {
	out, err := sjson.SetBytes(nil, "start", s.Program)
	if err != nil {
		return nil, fmt.Errorf("encode start: %w", err)
	}
	out, err = sjson.SetBytes(out, "stopOnEntry", s.StopOnEntry)
	if err != nil {
		return nil, fmt.Errorf("encode start: %w", err)
	}
	return out, nil
}

// Encode implements Command.
func (b SetBreakpoints) Encode() ([]byte, error) {
	lines := b.Lines
	if lines == nil {
		lines = []int{}
	}
	out, err := sjson.SetBytes(nil, "breakpoints.file", b.File)
	if err != nil {
		return nil, fmt.Errorf("encode breakpoints: %w", err)
	}
	out, err = sjson.SetBytes(out, "breakpoints.lines", lines)
	if err != nil {
		return nil, fmt.Errorf("encode breakpoints: %w", err)
	}
	return out, nil
}

// Encode implements Command.
func (r RawText) Encode() ([]byte, error) { return []byte(r.Text), nil }

// ParseCommand decodes an outbound record as the runtime sees it. It is the
// inverse of Command.Encode and is used by runtime-side peers.
func ParseCommand(record []byte) (Command, error) {
	record = bytes.TrimSpace(record)
	switch string(record) {
	case "continue":
		return Continue{}, nil
	case "reversecontinue":
		return ReverseContinue{}, nil
	case "step":
		return Step{}, nil
	case "stepback":
		return StepBack{}, nil
	}

	if !gjson.ValidBytes(record) {
		return RawText{Text: string(record)}, nil
	}
	doc := gjson.ParseBytes(record)

	if start := doc.Get("stackstart"); start.Exists() {
		return StackQuery{Start: int(start.Int()), End: int(doc.Get("stackend").Int())}, nil
	}
	if program := doc.Get("start"); program.Exists() {
		return Start{Program: program.String(), StopOnEntry: doc.Get("stopOnEntry").Bool()}, nil
	}
	if bps := doc.Get("breakpoints"); bps.Exists() {
		cmd := SetBreakpoints{File: bps.Get("file").String(), Lines: []int{}}
		bps.Get("lines").ForEach(func(_, line gjson.Result) bool {
			cmd.Lines = append(cmd.Lines, int(line.Int()))
			return true
		})
		return cmd, nil
	}
	return RawText{Text: string(record)}, nil
}

// EncodeMessage renders an inbound record as the runtime would send it. It
// is the inverse of Decode and is used by runtime-side peers.
func EncodeMessage(msg Message) ([]byte, error) {
	var (
		out []byte
		err error
	)
	set := func(path string, value any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, value)
		}
	}

	switch m := msg.(type) {
	case StackInfo:
		set(fieldStackNumLevels, m.NumLevels)
		if m.NumLevels > 0 {
			set(fieldSource, m.SourceFile)
			set(fieldLine, m.Line)
		}
	case StopNotice:
		set(fieldStopped, m.Reason)
	case OutputNotice:
		set(fieldOutput, m.Text)
		set(fieldFile, m.File)
		set(fieldLine, m.Line)
		set(fieldColumn, m.Column)
	case EndNotice:
		set(fieldEnd, true)
	default:
		return nil, fmt.Errorf("unknown runtime message %T", msg)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return out, nil
}
