package ledger

import "errors"

// Domain errors raised by validation. They are deterministic, carry no
// transport detail, and are always surfaced before any store write is
// attempted; the service layer maps them onto HTTP status codes.
var (
	// ErrInvalidAmount rejects amounts that are zero or negative.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInsufficientFunds rejects withdrawals and transfers that
	// exceed the current balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownReceiver rejects transfers to an account id that is
	// not in the known account set.
	ErrUnknownReceiver = errors.New("unknown receiver account")

	// ErrSameAccount rejects transfers from an account to itself.
	ErrSameAccount = errors.New("sender and receiver are the same account")
)
