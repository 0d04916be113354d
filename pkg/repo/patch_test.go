package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatchSetClause(t *testing.T) {
	t.Parallel()

	p := NewPatch().
		Set("notes", "window table").
		Set("table_label", "T4")

	clause, args := p.SetClause(3)
	assert.Equal(t, "notes = $3, table_label = $4", clause)
	assert.Equal(t, []any{"window table", "T4"}, args)
	assert.Equal(t, 5, p.NextPlaceholder(3))
}

func TestPatchEmpty(t *testing.T) {
	t.Parallel()

	p := NewPatch()
	assert.True(t, p.IsEmpty())

	clause, args := p.SetClause(1)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}
