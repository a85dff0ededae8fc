package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction selects which side of an operation a mutation applies to.
// Deposits and incoming transfer legs are In; withdrawals and outgoing
// transfer legs are Out.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Apply produces the new balance and the transaction record for one
// account, given an already-validated operation. The emitted record
// carries the post-mutation balance snapshot and the caller-captured
// timestamp; capturing the clock once per operation lets both legs of
// a transfer share it. receiverID is recorded only on transfer legs.
//
// Apply never persists anything and never fails: validation happens
// before it is called.
func Apply(balance decimal.Decimal, typ Type, dir Direction, amount decimal.Decimal, at time.Time, receiverID string) (decimal.Decimal, Transaction) {
	signed := amount
	if dir == DirectionOut {
		signed = amount.Neg()
	}
	newBalance := balance.Add(signed)

	var recv *string
	if typ == TypeTransfer {
		r := receiverID
		recv = &r
	}

	return newBalance, Transaction{
		DateTime:   at,
		Amount:     signed,
		Balance:    newBalance,
		Type:       typ,
		ReceiverID: recv,
	}
}
