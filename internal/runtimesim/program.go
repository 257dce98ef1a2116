package runtimesim

import (
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// ErrProgramEnded is returned by Step once every statement has run.
var ErrProgramEnded = errors.New("program ended")

// statement is the smallest run of source lines that compiles on its own.
// Line is the 0-based line of its first source line.
type statement struct {
	Line int
	Code string
}

// Program is a Lua script executed one statement at a time in a single
// gopher-lua state. Statements share globals; a local declared in one
// statement is not visible to the next.
type Program struct {
	Path  string
	L     *lua.LState
	stmts []statement
	pc    int

	// OnPrint receives print output with the line of the running statement.
	OnPrint func(text string, line int)
}

// LoadProgram reads and splits the script at path.
func LoadProgram(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return NewProgram(path, string(src))
}

// NewProgram splits src into statements and prepares a Lua state for them.
func NewProgram(path, src string) (*Program, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	stmts, err := splitStatements(L, src)
	if err != nil {
		L.Close()
		return nil, err
	}

	p := &Program{Path: path, L: L, stmts: stmts}
	L.SetGlobal("print", L.NewFunction(p.luaPrint))
	return p, nil
}

// openSafeLibraries opens the libraries a game script may use. io, os,
// debug and package stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// splitStatements groups source lines into chunks that compile. Blank and
// comment-only lines are skipped.
func splitStatements(L *lua.LState, src string) ([]statement, error) {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")

	var (
		stmts   []statement
		pending []string
		start   int
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(pending) == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		if len(pending) == 0 {
			start = i
		}
		pending = append(pending, line)

		code := strings.Join(pending, "\n")
		if _, err := L.LoadString(code); err != nil {
			continue
		}
		stmts = append(stmts, statement{Line: start, Code: code})
		pending = nil
	}

	if len(pending) > 0 {
		code := strings.Join(pending, "\n")
		_, err := L.LoadString(code)
		return nil, fmt.Errorf("line %d: %w", start+1, err)
	}
	return stmts, nil
}

// Len returns the number of statements.
func (p *Program) Len() int { return len(p.stmts) }

// Done reports whether every statement has run.
func (p *Program) Done() bool { return p.pc >= len(p.stmts) }

// Line returns the 0-based line of the next statement, or -1 once done.
func (p *Program) Line() int {
	if p.Done() {
		return -1
	}
	return p.stmts[p.pc].Line
}

// Lines returns the first line of every statement, in order.
func (p *Program) Lines() []int {
	out := make([]int, len(p.stmts))
	for i, s := range p.stmts {
		out[i] = s.Line
	}
	return out
}

// Step runs the next statement. A Lua error still advances past the
// statement; the error is returned so the caller can report an exception.
func (p *Program) Step() error {
	if p.Done() {
		return ErrProgramEnded
	}
	stmt := p.stmts[p.pc]
	err := p.doWithRecovery(func() error {
		return p.L.DoString(stmt.Code)
	})
	p.pc++
	return err
}

// Close releases the Lua state.
func (p *Program) Close() {
	p.L.Close()
}

func (p *Program) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (p *Program) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, top)
	for i := 1; i <= top; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	if p.OnPrint != nil {
		line := 0
		if p.pc < len(p.stmts) {
			line = p.stmts[p.pc].Line
		}
		p.OnPrint(strings.Join(parts, "\t"), line)
	}
	return 0
}
