package debug

import "sync"

// FirstHandle is the first variable reference handed out by Handles.
// References below it are never valid.
const FirstHandle = 1000

// Variable is one entry of a variables response.
type Variable struct {
	// Name is the variable name.
	Name string

	// Value is the variable value as a string.
	Value string

	// Type is the variable type.
	Type string

	// VariablesReference is the handle to fetch children, 0 for scalars.
	VariablesReference int
}

// HasChildren reports whether the variable can be expanded.
func (v Variable) HasChildren() bool {
	return v.VariablesReference > 0
}

// VariableInspector resolves the variables behind a handle's value.
type VariableInspector interface {
	Variables(ref string) []Variable
}

// Handles maps integer variable references to the string keys the inspector
// understands. References are only meaningful until the next Reset.
type Handles struct {
	mu     sync.Mutex
	next   int
	values map[int]string
}

// NewHandles creates an empty handle table.
func NewHandles() *Handles {
	return &Handles{
		next:   FirstHandle,
		values: make(map[int]string),
	}
}

// Create allocates a new reference for value.
func (h *Handles) Create(value string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	ref := h.next
	h.next++
	h.values[ref] = value
	return ref
}

// Get returns the value behind ref.
func (h *Handles) Get(ref int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	value, ok := h.values[ref]
	return value, ok
}

// Len returns the number of live references.
func (h *Handles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

// Reset forgets all references and restarts numbering.
func (h *Handles) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next = FirstHandle
	h.values = make(map[int]string)
}

// CannedInspector returns a fixed set of placeholder variables for every
// reference. The runtime does not report variable values yet.
type CannedInspector struct {
	handles *Handles
}

// NewCannedInspector creates an inspector that allocates child references
// from handles.
func NewCannedInspector(handles *Handles) *CannedInspector {
	return &CannedInspector{handles: handles}
}

// Variables implements VariableInspector.
func (c *CannedInspector) Variables(ref string) []Variable {
	return []Variable{
		{Name: ref + "_i", Type: "integer", Value: "123"},
		{Name: ref + "_f", Type: "float", Value: "3.14"},
		{Name: ref + "_s", Type: "string", Value: "hello world"},
		{Name: ref + "_o", Type: "object", Value: "Object", VariablesReference: c.handles.Create("object_")},
	}
}
