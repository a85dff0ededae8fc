package ledger

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Validate decides whether a requested operation is admissible given
// the current balance. Checks run in a fixed order: amount first, then
// the type-specific rules. receiverID and knownIDs only matter for
// transfers. No side effects; deterministic for a given input.
//
// Same-account transfers are a caller concern (the coordinator rejects
// them before validating), because this predicate intentionally does
// not know who the sender is.
func Validate(typ Type, amount, balance decimal.Decimal, receiverID string, knownIDs []string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	switch typ {
	case TypeWithdrawal:
		if amount.GreaterThan(balance) {
			return ErrInsufficientFunds
		}
	case TypeTransfer:
		if !slices.Contains(knownIDs, receiverID) {
			return ErrUnknownReceiver
		}
		if amount.GreaterThan(balance) {
			return ErrInsufficientFunds
		}
	}
	return nil
}
