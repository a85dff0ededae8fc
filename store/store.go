// Package store defines the account store collaborator: the external
// system of record for accounts and their transaction histories. The
// core consumes it through three operations (read one, read all,
// merge-patch of balance+transactions) and never assumes multi-key
// transactions.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
)

var (
	// ErrNotFound is returned when the account id is unknown.
	ErrNotFound = errors.New("account not found")

	// ErrVersionConflict is returned when a patch carries a revision
	// that no longer matches the stored record.
	ErrVersionConflict = errors.New("account revision conflict")

	// ErrExists is returned when creating an account whose id is taken.
	ErrExists = errors.New("account already exists")

	// ErrStoreUnavailable wraps any transport-level failure talking to
	// the store: connection errors, 5xx responses, or an open circuit
	// breaker. Operations abort on it; there is no automatic retry.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// Patch carries the two mutable fields of an account. The store must
// merge it without touching id or holder.
type Patch struct {
	Balance      decimal.Decimal      `json:"balance"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// Snapshot is a full account record together with the revision it was
// read at. Revision is opaque; an empty revision on a patch makes the
// write unconditional.
type Snapshot struct {
	Account  ledger.Account
	Revision string
}

// AccountStore is the remote collaborator owning account persistence.
// PatchAccount returns the record's new revision so callers can keep
// writing without re-reading.
type AccountStore interface {
	ListAccounts(ctx context.Context) ([]ledger.AccountSummary, error)
	GetAccount(ctx context.Context, id string) (Snapshot, error)
	PatchAccount(ctx context.Context, id, revision string, patch Patch) (string, error)
}
