package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

func TestHistoryFormatting(t *testing.T) {
	peer := int64(9)
	in := domain.Transaction{Type: domain.TypeTransferIn, Amount: decimal.RequireFromString("12.5"), CounterpartyAccountID: &peer}
	out := domain.Transaction{Type: domain.TypeWithdraw, Amount: decimal.NewFromInt(3)}

	assert.Equal(t, "+12.50", signed(in))
	assert.Equal(t, "-3.00", signed(out))
	assert.Equal(t, "9", counterparty(in))
	assert.Equal(t, "-", counterparty(out))
	assert.Equal(t, "Drift", capitalize("drift"))
}
