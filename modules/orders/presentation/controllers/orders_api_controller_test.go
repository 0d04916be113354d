package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateOrderRequestValidate(t *testing.T) {
	assert.NoError(t, createOrderRequest{}.Validate())
	assert.NoError(t, createOrderRequest{TableLabel: "table 4", Notes: "window seat"}.Validate())

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, createOrderRequest{TableLabel: string(long)}.Validate())
}

func TestAddLineRequestValidate(t *testing.T) {
	valid := addLineRequest{ExpectedVersion: 1, SKU: "ESP-01", Name: "Espresso", Quantity: 2, UnitPriceCents: 350}
	assert.NoError(t, valid.Validate())

	assert.Error(t, addLineRequest{SKU: "ESP-01", Name: "Espresso", Quantity: 1}.Validate())
	assert.Error(t, addLineRequest{ExpectedVersion: 1, Name: "Espresso", Quantity: 1}.Validate())
	assert.Error(t, addLineRequest{ExpectedVersion: 1, SKU: "ESP-01", Name: "Espresso"}.Validate())
	assert.Error(t, addLineRequest{ExpectedVersion: 1, SKU: "ESP-01", Name: "Espresso", Quantity: -1}.Validate())
}

func TestUpdateOrderRequestValidate(t *testing.T) {
	label := "table 9"
	assert.NoError(t, updateOrderRequest{ExpectedVersion: 2, TableLabel: &label}.Validate())
	assert.Error(t, updateOrderRequest{TableLabel: &label}.Validate())
}

func TestPayOrderRequestValidate(t *testing.T) {
	assert.NoError(t, payOrderRequest{ExpectedVersion: 1}.Validate())
	assert.Error(t, payOrderRequest{}.Validate())
}
