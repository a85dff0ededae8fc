package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmountMustBePositive(t *testing.T) {
	known := []string{"acc-2"}

	for _, typ := range []Type{TypeDeposit, TypeWithdrawal, TypeTransfer} {
		assert.ErrorIs(t, Validate(typ, decimal.Zero, decimal.NewFromInt(100), "acc-2", known), ErrInvalidAmount, string(typ))
		assert.ErrorIs(t, Validate(typ, decimal.NewFromInt(-5), decimal.NewFromInt(100), "acc-2", known), ErrInvalidAmount, string(typ))
	}
}

func TestValidateDeposit(t *testing.T) {
	// deposits only care about the amount, even on a zero balance
	assert.NoError(t, Validate(TypeDeposit, decimal.NewFromInt(50), decimal.Zero, "", nil))
}

func TestValidateWithdrawal(t *testing.T) {
	balance := decimal.NewFromInt(150)

	assert.NoError(t, Validate(TypeWithdrawal, decimal.NewFromInt(150), balance, "", nil))
	assert.ErrorIs(t, Validate(TypeWithdrawal, decimal.NewFromInt(200), balance, "", nil), ErrInsufficientFunds)
}

func TestValidateTransfer(t *testing.T) {
	balance := decimal.NewFromInt(150)
	known := []string{"A", "B", "C"}

	assert.NoError(t, Validate(TypeTransfer, decimal.NewFromInt(30), balance, "B", known))

	// receiver membership is checked before funds
	err := Validate(TypeTransfer, decimal.NewFromInt(500), balance, "nope", known)
	assert.ErrorIs(t, err, ErrUnknownReceiver)

	assert.ErrorIs(t, Validate(TypeTransfer, decimal.NewFromInt(151), balance, "B", known), ErrInsufficientFunds)
	assert.ErrorIs(t, Validate(TypeTransfer, decimal.NewFromInt(30), balance, "B", nil), ErrUnknownReceiver)
}
