// Package ledger holds the domain model and the pure banking core:
// transaction validation, balance/ledger co-mutation and
// the statement query pipeline. Nothing in this package talks to the
// network; persistence belongs to the account store collaborator.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies a balance-affecting event.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
)

// WireTimeLayout is the timestamp format the account store keeps.
// Stored histories already contain en-US locale strings such as
// "1/15/2024, 3:04:05 PM", so the wire codec has to keep producing
// and accepting them.
const WireTimeLayout = "1/2/2006, 3:04:05 PM"

func init() {
	// The store keeps amounts and balances as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Transaction is one immutable ledger entry. Balance is the account
// balance immediately after the entry was applied, not a delta; the
// amount is signed, positive for deposits and incoming transfers.
// ReceiverID is nil except on transfer legs, where it names the
// counterpart account.
type Transaction struct {
	DateTime   time.Time
	Amount     decimal.Decimal
	Balance    decimal.Decimal
	Type       Type
	ReceiverID *string
}

type wireTransaction struct {
	DateTime   string          `json:"dateTime"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	Type       Type            `json:"type"`
	ReceiverID *string         `json:"receiverId"`
}

// MarshalJSON emits the store's wire shape: locale timestamp string,
// numeric amount/balance, and an explicit null receiverId for
// non-transfer entries.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTransaction{
		DateTime:   t.DateTime.Format(WireTimeLayout),
		Amount:     t.Amount,
		Balance:    t.Balance,
		Type:       t.Type,
		ReceiverID: t.ReceiverID,
	})
}

// UnmarshalJSON accepts the wire shape produced by MarshalJSON as well
// as RFC 3339 timestamps, which show up in hand-seeded store fixtures.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	at, err := ParseWireTime(w.DateTime)
	if err != nil {
		return fmt.Errorf("transaction dateTime: %w", err)
	}

	*t = Transaction{
		DateTime:   at,
		Amount:     w.Amount,
		Balance:    w.Balance,
		Type:       w.Type,
		ReceiverID: w.ReceiverID,
	}
	return nil
}

// ParseWireTime parses a stored timestamp, preferring the locale
// layout and falling back to RFC 3339.
func ParseWireTime(s string) (time.Time, error) {
	if at, err := time.Parse(WireTimeLayout, s); err == nil {
		return at, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Account is the store's full record for one account. Transactions
// are ordered most-recent-first; the record's balance always equals
// the newest transaction's balance snapshot, or the opening balance
// when the history is empty.
type Account struct {
	ID           string          `json:"id"`
	Holder       string          `json:"accountHolder"`
	Balance      decimal.Decimal `json:"balance"`
	Transactions []Transaction   `json:"transactions"`
}

// AccountSummary is the shape returned by the store's list endpoint.
type AccountSummary struct {
	ID      string          `json:"id"`
	Holder  string          `json:"accountHolder"`
	Balance decimal.Decimal `json:"balance"`
}

// Summary strips the history off a full record.
func (a Account) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Holder: a.Holder, Balance: a.Balance}
}

// Prepend returns a new history with tx at the front. Histories are
// append-to-front and never reordered, so callers must not mutate the
// slice they passed in afterwards.
func Prepend(history []Transaction, tx Transaction) []Transaction {
	out := make([]Transaction, 0, len(history)+1)
	out = append(out, tx)
	return append(out, history...)
}
