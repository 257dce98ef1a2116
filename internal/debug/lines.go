package debug

// LineConverter translates line and column numbers between the internal
// 0-based numbering and the front end's numbering. It is applied only where
// values cross the front-end boundary.
type LineConverter struct {
	LinesStartAt1   bool
	ColumnsStartAt1 bool
}

// DefaultLineConverter matches DAP's default of 1-based lines and columns.
func DefaultLineConverter() LineConverter {
	return LineConverter{LinesStartAt1: true, ColumnsStartAt1: true}
}

// ToClientLine converts an internal line to the front end's numbering.
func (c LineConverter) ToClientLine(line int) int {
	if c.LinesStartAt1 {
		return line + 1
	}
	return line
}

// ToInternalLine converts a front-end line to the internal numbering.
func (c LineConverter) ToInternalLine(line int) int {
	if c.LinesStartAt1 {
		return line - 1
	}
	return line
}

// ToClientColumn converts an internal column to the front end's numbering.
func (c LineConverter) ToClientColumn(col int) int {
	if c.ColumnsStartAt1 {
		return col + 1
	}
	return col
}

// ToInternalColumn converts a front-end column to the internal numbering.
func (c LineConverter) ToInternalColumn(col int) int {
	if c.ColumnsStartAt1 {
		return col - 1
	}
	return col
}
