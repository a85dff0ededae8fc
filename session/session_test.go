package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
	"github.com/AleksandarBuk/go-bank-ledger/transfer"
)

type capturedEvent struct {
	accountID string
	tx        ledger.Transaction
}

type fakePublisher struct {
	events []capturedEvent
}

func (p *fakePublisher) TransactionRecorded(_ context.Context, accountID string, tx ledger.Transaction) error {
	p.events = append(p.events, capturedEvent{accountID: accountID, tx: tx})
	return nil
}

func managerFixture(accounts ...ledger.Account) (*Manager, *store.Memory, *fakePublisher) {
	if len(accounts) == 0 {
		accounts = []ledger.Account{
			{ID: "A", Holder: "Alice", Balance: decimal.NewFromInt(100)},
			{ID: "B", Holder: "Bob", Balance: decimal.Zero},
		}
	}
	mem := store.NewMemory(accounts...)
	pub := &fakePublisher{}
	coord := transfer.NewCoordinator(mem, transfer.NewMemoryJournal(), nil)
	return NewManager(mem, coord, pub, nil), mem, pub
}

func TestNewSelectsFirstAccount(t *testing.T) {
	mgr, _, _ := managerFixture()

	s, err := mgr.New(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "A", s.AccountID)
	assert.Equal(t, "Alice", s.Holder)
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, DefaultPageSize, s.PageSize)
	assert.Equal(t, ledger.SortDesc, s.Sort)
	require.Len(t, s.Accounts, 2)
}

func TestNewWithNoAccounts(t *testing.T) {
	mgr := NewManager(store.NewMemory(), nil, nil, nil)

	s, err := mgr.New(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.AccountID)
	assert.Empty(t, s.Accounts)
}

func TestDeposit(t *testing.T) {
	mgr, mem, pub := managerFixture()
	ctx := context.Background()

	s, err := mgr.New(ctx)
	require.NoError(t, err)

	s, err = mgr.Deposit(ctx, s, decimal.NewFromInt(50))
	require.NoError(t, err)

	assert.True(t, s.Balance.Equal(decimal.NewFromInt(150)))
	require.Len(t, s.History, 1)
	assert.True(t, s.History[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, s.History[0].Balance.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, ledger.TypeDeposit, s.History[0].Type)
	assert.Nil(t, s.History[0].ReceiverID)

	// persisted, not just cached
	snap, err := mem.GetAccount(ctx, "A")
	require.NoError(t, err)
	assert.True(t, snap.Account.Balance.Equal(decimal.NewFromInt(150)))

	// summary list tracks the new balance
	assert.True(t, s.Accounts[0].Balance.Equal(decimal.NewFromInt(150)))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "A", pub.events[0].accountID)
}

func TestWithdrawRejectedLeavesStateAlone(t *testing.T) {
	mgr, mem, pub := managerFixture(
		ledger.Account{ID: "A", Holder: "Alice", Balance: decimal.NewFromInt(150)},
	)
	ctx := context.Background()

	s, err := mgr.New(ctx)
	require.NoError(t, err)

	_, err = mgr.Withdraw(ctx, s, decimal.NewFromInt(200))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	snap, _ := mem.GetAccount(ctx, "A")
	assert.True(t, snap.Account.Balance.Equal(decimal.NewFromInt(150)))
	assert.Empty(t, snap.Account.Transactions, "no transaction recorded")
	assert.Empty(t, pub.events)
}

func TestWithdraw(t *testing.T) {
	mgr, _, _ := managerFixture(
		ledger.Account{ID: "A", Holder: "Alice", Balance: decimal.NewFromInt(150)},
	)
	ctx := context.Background()

	s, err := mgr.New(ctx)
	require.NoError(t, err)

	s, err = mgr.Withdraw(ctx, s, decimal.NewFromInt(30))
	require.NoError(t, err)

	assert.True(t, s.Balance.Equal(decimal.NewFromInt(120)))
	require.Len(t, s.History, 1)
	assert.True(t, s.History[0].Amount.Equal(decimal.NewFromInt(-30)))
}

func TestInvalidAmountRejectedForEveryType(t *testing.T) {
	mgr, _, _ := managerFixture()
	ctx := context.Background()

	s, err := mgr.New(ctx)
	require.NoError(t, err)

	_, err = mgr.Deposit(ctx, s, decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = mgr.Withdraw(ctx, s, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = mgr.Transfer(ctx, s, "B", decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestDepositRetriesOnRevisionConflict(t *testing.T) {
	mgr, mem, _ := managerFixture()
	ctx := context.Background()

	s, err := mgr.New(ctx)
	require.NoError(t, err)

	var conflicted bool
	mem.PatchHook = func(id string) error {
		if !conflicted {
			conflicted = true
			return store.ErrVersionConflict
		}
		return nil
	}

	s, err = mgr.Deposit(ctx, s, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(150)))

	snap, _ := mem.GetAccount(ctx, "A")
	assert.Len(t, snap.Account.Transactions, 1, "applied exactly once")
}

func TestTransferEndToEnd(t *testing.T) {
	mgr, mem, pub := managerFixture(
		ledger.Account{ID: "A", Holder: "Alice", Balance: decimal.NewFromInt(150)},
		ledger.Account{ID: "B", Holder: "Bob", Balance: decimal.Zero},
	)
	ctx := context.Background()

	s, err := mgr.New(ctx)
	require.NoError(t, err)

	s, err = mgr.Transfer(ctx, s, "B", decimal.NewFromInt(30))
	require.NoError(t, err)

	assert.True(t, s.Balance.Equal(decimal.NewFromInt(120)))
	require.Len(t, s.History, 1)
	require.NotNil(t, s.History[0].ReceiverID)
	assert.Equal(t, "B", *s.History[0].ReceiverID)
	assert.True(t, s.History[0].Amount.Equal(decimal.NewFromInt(-30)))

	snap, _ := mem.GetAccount(ctx, "B")
	assert.True(t, snap.Account.Balance.Equal(decimal.NewFromInt(30)))
	require.Len(t, snap.Account.Transactions, 1)
	require.NotNil(t, snap.Account.Transactions[0].ReceiverID)
	assert.Equal(t, "A", *snap.Account.Transactions[0].ReceiverID)
	assert.True(t, snap.Account.Transactions[0].Amount.Equal(decimal.NewFromInt(30)))

	// one event per leg
	require.Len(t, pub.events, 2)
	assert.Equal(t, "B", pub.events[0].accountID)
	assert.Equal(t, "A", pub.events[1].accountID)
}

func TestStatementNavigationClamps(t *testing.T) {
	history := make([]ledger.Transaction, 0, 23)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	balance := decimal.Zero
	for i := 0; i < 23; i++ {
		balance = balance.Add(decimal.NewFromInt(1))
		history = ledger.Prepend(history, ledger.Transaction{
			DateTime: base.Add(time.Duration(i) * time.Hour),
			Amount:   decimal.NewFromInt(1),
			Balance:  balance,
			Type:     ledger.TypeDeposit,
		})
	}
	mgr, _, _ := managerFixture(ledger.Account{
		ID: "A", Holder: "Alice", Balance: balance, Transactions: history,
	})

	s, err := mgr.New(context.Background())
	require.NoError(t, err)

	page, total := s.Statement()
	assert.Equal(t, 3, total)
	assert.Len(t, page, 10)

	s = s.LastPage()
	assert.Equal(t, 3, s.Page)
	page, _ = s.Statement()
	assert.Len(t, page, 3)

	s = s.NextPage()
	assert.Equal(t, 3, s.Page, "next clamps at the last page")

	s = s.FirstPage().PreviousPage()
	assert.Equal(t, 1, s.Page, "previous clamps at the first page")
}

func TestSetFilterRewindsToFirstPage(t *testing.T) {
	s := Session{Page: 3, PageSize: DefaultPageSize, Sort: ledger.SortDesc}

	s = s.SetFilter(ledger.StatementFilter{Type: ledger.TypeDeposit})
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, ledger.TypeDeposit, s.Filter.Type)

	s = s.SetSort(ledger.SortAsc)
	assert.Equal(t, ledger.SortAsc, s.Sort)
}
