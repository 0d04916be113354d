package order

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venuehq/venue-sdk/pkg/serrors"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusOpen.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusVoid.Terminal())
}

func TestTotalCents(t *testing.T) {
	o := &Order{Lines: []LineItem{
		{TotalCents: 500},
		{TotalCents: 1250},
	}}
	assert.EqualValues(t, 1750, o.TotalCents())

	assert.Zero(t, (&Order{}).TotalCents())
}

func TestNewOrderNotOpenErrorIsNotAVersionConflict(t *testing.T) {
	err := NewOrderNotOpenError(StatusPaid)

	assert.Equal(t, http.StatusConflict, serrors.Status(err))
	assert.Equal(t, "ORDER_NOT_OPEN", serrors.Code(err))
	assert.NotEqual(t, serrors.CodeVersionConflict, serrors.Code(err))
	assert.Contains(t, err.Error(), "paid")
}

func TestUpdateInputIsEmpty(t *testing.T) {
	assert.True(t, UpdateInput{ExpectedVersion: 3}.IsEmpty())

	label := "table 4"
	assert.False(t, UpdateInput{TableLabel: &label}.IsEmpty())

	empty := ""
	// Clearing a field is still a change.
	assert.False(t, UpdateInput{Notes: &empty}.IsEmpty())
}
