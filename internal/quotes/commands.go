package quotes

// LineCommand is a line list mutation applied optimistically by an Editor.
type LineCommand interface {
	Apply(e *Editor) error
}

// AddLineCommand appends a line.
type AddLineCommand struct {
	Line LineItem
}

// Apply implements LineCommand.
func (c AddLineCommand) Apply(e *Editor) error { return e.AddLine(c.Line) }

// RemoveLineCommand removes a line.
type RemoveLineCommand struct {
	ID string
}

// Apply implements LineCommand.
func (c RemoveLineCommand) Apply(e *Editor) error { return e.RemoveLine(c.ID) }

// ReorderLinesCommand reorders the lines.
type ReorderLinesCommand struct {
	IDs []string
}

// Apply implements LineCommand.
func (c ReorderLinesCommand) Apply(e *Editor) error { return e.Reorder(c.IDs) }

// ToggleCourtesyCommand flips a courtesy flag.
type ToggleCourtesyCommand struct {
	ID string
}

// Apply implements LineCommand.
func (c ToggleCourtesyCommand) Apply(e *Editor) error { return e.ToggleCourtesy(c.ID) }
