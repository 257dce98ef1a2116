package debug

import (
	"sync"
)

// Breakpoint is a line breakpoint owned by the Registry.
type Breakpoint struct {
	// ID is unique for the lifetime of the Registry.
	ID int `json:"id"`

	// Path is the source file path as the front end sent it.
	Path string `json:"path"`

	// Line is the 0-based internal line number.
	Line int `json:"line"`

	// Verified is always true: no static check against loaded source is made.
	Verified bool `json:"verified"`
}

// Registry holds breakpoints grouped by file path.
//
// Ids come from one counter shared by all files and are never reused.
type Registry struct {
	mu     sync.RWMutex
	byPath map[string][]*Breakpoint
	nextID int
}

// NewRegistry creates an empty registry. The first id handed out is 1.
func NewRegistry() *Registry {
	return &Registry{
		byPath: make(map[string][]*Breakpoint),
		nextID: 1,
	}
}

// allocateID must be called with mu held.
func (r *Registry) allocateID() int {
	id := r.nextID
	r.nextID++
	return id
}

func (r *Registry) newBreakpoint(path string, line int) *Breakpoint {
	return &Breakpoint{
		ID:       r.allocateID(),
		Path:     path,
		Line:     line,
		Verified: true,
	}
}

// ClearAll removes every breakpoint of path and returns the removed records.
// Clearing an unknown path is a no-op returning an empty slice.
func (r *Registry) ClearAll(path string) []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := copyBreakpoints(r.byPath[path])
	delete(r.byPath, path)
	return removed
}

// SetBreakpoints replaces the breakpoints of path with one fresh record per
// requested line. The result has exactly one record per input line, in input
// order, so the caller can echo it back index for index.
func (r *Registry) SetBreakpoints(path string, lines []int) []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(lines) == 0 {
		delete(r.byPath, path)
		return []Breakpoint{}
	}

	bps := make([]*Breakpoint, len(lines))
	for i, line := range lines {
		bps[i] = r.newBreakpoint(path, line)
	}
	r.byPath[path] = bps

	return copyBreakpoints(bps)
}

// SetSingle adds one breakpoint to path, leaving the others in place.
func (r *Registry) SetSingle(path string, line int) Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp := r.newBreakpoint(path, line)
	r.byPath[path] = append(r.byPath[path], bp)
	return *bp
}

// ClearSingle removes the first breakpoint of path at line. The bool is
// false when no such breakpoint exists.
func (r *Registry) ClearSingle(path string, line int) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bps := r.byPath[path]
	for i, bp := range bps {
		if bp.Line != line {
			continue
		}
		r.byPath[path] = append(bps[:i:i], bps[i+1:]...)
		if len(r.byPath[path]) == 0 {
			delete(r.byPath, path)
		}
		return *bp, true
	}
	return Breakpoint{}, false
}

// ForPath returns the breakpoints of path in insertion order.
func (r *Registry) ForPath(path string) []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyBreakpoints(r.byPath[path])
}

// At returns the first breakpoint of path at line, if any.
func (r *Registry) At(path string, line int) (Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, bp := range r.byPath[path] {
		if bp.Line == line {
			return *bp, true
		}
	}
	return Breakpoint{}, false
}

// Paths returns every path that currently has breakpoints.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.byPath))
	for path := range r.byPath {
		paths = append(paths, path)
	}
	return paths
}

// Lines returns the internal lines of path, in insertion order.
func (r *Registry) Lines(path string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lines := make([]int, len(r.byPath[path]))
	for i, bp := range r.byPath[path] {
		lines[i] = bp.Line
	}
	return lines
}

func copyBreakpoints(bps []*Breakpoint) []Breakpoint {
	out := make([]Breakpoint, len(bps))
	for i, bp := range bps {
		out[i] = *bp
	}
	return out
}
