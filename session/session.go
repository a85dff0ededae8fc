// Package session models client-facing application state as an
// explicit value instead of shared globals. A Session carries the
// selected account, its cached history and the statement controls;
// every operation takes a Session and returns an updated one, so the
// caller owns the threading of state between calls and the core stays
// request-scoped.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/events"
	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
	"github.com/AleksandarBuk/go-bank-ledger/transfer"
)

// DefaultPageSize is how many transactions a statement page shows.
const DefaultPageSize = 10

// conflictRetries bounds how often a mutation is re-validated and
// re-applied after losing a revision race.
const conflictRetries = 3

// Session is the state a caller threads across operations.
type Session struct {
	AccountID string
	Holder    string
	Balance   decimal.Decimal
	History   []ledger.Transaction
	Accounts  []ledger.AccountSummary

	Filter   ledger.StatementFilter
	Sort     ledger.SortOrder
	Page     int
	PageSize int

	revision string
}

// Manager runs session operations against the store, the transfer
// coordinator and the event publisher.
type Manager struct {
	store  store.AccountStore
	coord  *transfer.Coordinator
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewManager(st store.AccountStore, coord *transfer.Coordinator, pub events.Publisher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: st, coord: coord, events: pub, log: log, now: time.Now}
}

// New loads the account list and selects the first account. With no
// accounts the session comes back empty but usable.
func (m *Manager) New(ctx context.Context) (Session, error) {
	accounts, err := m.store.ListAccounts(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("list accounts: %w", err)
	}

	s := Session{
		Accounts: accounts,
		Sort:     ledger.SortDesc,
		Page:     1,
		PageSize: DefaultPageSize,
	}
	if len(accounts) == 0 {
		return s, nil
	}
	return m.Select(ctx, s, accounts[0].ID)
}

// Accounts lists the store's account summaries.
func (m *Manager) Accounts(ctx context.Context) ([]ledger.AccountSummary, error) {
	return m.store.ListAccounts(ctx)
}

// Attach builds a fresh session scoped to one account. HTTP callers
// use it to serve stateless requests; interactive callers start from
// New instead.
func (m *Manager) Attach(ctx context.Context, id string) (Session, error) {
	return m.Select(ctx, Session{
		Sort:     ledger.SortDesc,
		Page:     1,
		PageSize: DefaultPageSize,
	}, id)
}

// Select switches the session to the given account and resets the
// statement to its first page.
func (m *Manager) Select(ctx context.Context, s Session, id string) (Session, error) {
	s, err := m.load(ctx, s, id)
	if err != nil {
		return s, err
	}
	s.Page = 1
	return s, nil
}

// Refresh re-reads the selected account, keeping the statement
// controls where they are.
func (m *Manager) Refresh(ctx context.Context, s Session) (Session, error) {
	return m.load(ctx, s, s.AccountID)
}

func (m *Manager) load(ctx context.Context, s Session, id string) (Session, error) {
	snap, err := m.store.GetAccount(ctx, id)
	if err != nil {
		return s, fmt.Errorf("read account %s: %w", id, err)
	}

	s.AccountID = snap.Account.ID
	s.Holder = snap.Account.Holder
	s.Balance = snap.Account.Balance
	s.History = snap.Account.Transactions
	s.revision = snap.Revision
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	if s.Page < 1 {
		s.Page = 1
	}
	if s.Sort == "" {
		s.Sort = ledger.SortDesc
	}
	return s, nil
}

// Deposit adds amount to the selected account.
func (m *Manager) Deposit(ctx context.Context, s Session, amount decimal.Decimal) (Session, error) {
	return m.mutate(ctx, s, ledger.TypeDeposit, ledger.DirectionIn, amount)
}

// Withdraw removes amount from the selected account.
func (m *Manager) Withdraw(ctx context.Context, s Session, amount decimal.Decimal) (Session, error) {
	return m.mutate(ctx, s, ledger.TypeWithdrawal, ledger.DirectionOut, amount)
}

// mutate validates, applies and persists a single-account operation.
// A lost revision race re-reads, re-validates and retries, so two
// concurrent writers can never both apply against the same stale
// balance; validation failures surface before any write.
func (m *Manager) mutate(ctx context.Context, s Session, typ ledger.Type, dir ledger.Direction, amount decimal.Decimal) (Session, error) {
	for attempt := 0; ; attempt++ {
		if err := ledger.Validate(typ, amount, s.Balance, "", nil); err != nil {
			return s, err
		}

		balance, tx := ledger.Apply(s.Balance, typ, dir, amount, m.now(), "")
		history := ledger.Prepend(s.History, tx)

		rev, err := m.store.PatchAccount(ctx, s.AccountID, s.revision, store.Patch{
			Balance:      balance,
			Transactions: history,
		})
		if errors.Is(err, store.ErrVersionConflict) && attempt < conflictRetries {
			s, err = m.Refresh(ctx, s)
			if err != nil {
				return s, err
			}
			continue
		}
		if err != nil {
			return s, fmt.Errorf("write account %s: %w", s.AccountID, err)
		}

		s.Balance = balance
		s.History = history
		s.revision = rev
		s.Accounts = updateSummary(s.Accounts, s.AccountID, balance)

		m.publish(ctx, s.AccountID, tx)
		return s, nil
	}
}

// Transfer moves amount from the selected account to receiverID via
// the saga coordinator, then refreshes the sender side of the session.
func (m *Manager) Transfer(ctx context.Context, s Session, receiverID string, amount decimal.Decimal) (Session, error) {
	res, err := m.coord.Transfer(ctx, s.AccountID, receiverID, amount)
	if err != nil {
		return s, err
	}

	s.Balance = res.Sender.Balance
	s.History = res.Sender.Transactions
	s.Accounts = updateSummary(s.Accounts, s.AccountID, res.Sender.Balance)
	s.Accounts = updateSummary(s.Accounts, receiverID, res.Receiver.Balance)

	// the coordinator wrote past our cached revision; re-read so the
	// next mutation does not start from a stale one
	s, refreshErr := m.Refresh(ctx, s)
	if refreshErr != nil {
		m.log.Warn("refresh after transfer", zap.Error(refreshErr))
	}

	m.publish(ctx, res.Receiver.ID, res.ReceiverTx)
	m.publish(ctx, res.Sender.ID, res.SenderTx)
	return s, nil
}

func (m *Manager) publish(ctx context.Context, accountID string, tx ledger.Transaction) {
	if m.events == nil {
		return
	}
	if err := m.events.TransactionRecorded(ctx, accountID, tx); err != nil {
		m.log.Warn("publish transaction event",
			zap.String("account", accountID),
			zap.Error(err))
	}
}

func updateSummary(accounts []ledger.AccountSummary, id string, balance decimal.Decimal) []ledger.AccountSummary {
	out := append([]ledger.AccountSummary(nil), accounts...)
	for i := range out {
		if out[i].ID == id {
			out[i].Balance = balance
		}
	}
	return out
}

// Statement returns the current page of the filtered, sorted history
// together with the page count.
func (s Session) Statement() ([]ledger.Transaction, int) {
	return ledger.Statement(s.History, s.Filter, s.Sort, s.Page, s.PageSize)
}

func (s Session) totalPages() int {
	_, n := s.Statement()
	return n
}

// SetFilter replaces the statement filter and rewinds to the first
// page; the old page number is meaningless under new criteria.
func (s Session) SetFilter(f ledger.StatementFilter) Session {
	s.Filter = f
	s.Page = 1
	return s
}

// SetSort switches the statement sort order.
func (s Session) SetSort(order ledger.SortOrder) Session {
	s.Sort = order
	return s
}

// Page navigation clamps into [1, totalPages] so the statement query
// itself never sees an invalid page.

func (s Session) FirstPage() Session {
	s.Page = 1
	return s
}

func (s Session) PreviousPage() Session {
	if s.Page > 1 {
		s.Page--
	}
	return s
}

func (s Session) NextPage() Session {
	if s.Page < s.totalPages() {
		s.Page++
	}
	return s
}

func (s Session) LastPage() Session {
	if n := s.totalPages(); n > 0 {
		s.Page = n
	}
	return s
}
