package repo

import (
	"fmt"
	"strings"
)

// Patch accumulates the columns a caller actually supplied and renders them
// as a SET clause with positional placeholders. Partial updates declare an
// optional-field struct and call Set once per present field instead of
// branching per column at each call site.
type Patch struct {
	cols []string
	args []any
}

func NewPatch() *Patch {
	return &Patch{}
}

func (p *Patch) Set(column string, value any) *Patch {
	p.cols = append(p.cols, column)
	p.args = append(p.args, value)
	return p
}

func (p *Patch) IsEmpty() bool {
	return len(p.cols) == 0
}

// SetClause renders "col1 = $n, col2 = $n+1, ..." starting at placeholder n,
// and returns the clause together with the argument slice.
func (p *Patch) SetClause(start int) (string, []any) {
	parts := make([]string, 0, len(p.cols))
	for i, col := range p.cols {
		parts = append(parts, fmt.Sprintf("%s = $%d", col, start+i))
	}
	return strings.Join(parts, ", "), p.args
}

// NextPlaceholder returns the placeholder index following the patch columns.
func (p *Patch) NextPlaceholder(start int) int {
	return start + len(p.cols)
}
