package transfer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
)

func transferFixture() (*store.Memory, *MemoryJournal, *Coordinator) {
	mem := store.NewMemory(
		ledger.Account{ID: "A", Holder: "Alice", Balance: decimal.NewFromInt(150)},
		ledger.Account{ID: "B", Holder: "Bob", Balance: decimal.Zero},
	)
	journal := NewMemoryJournal()
	return mem, journal, NewCoordinator(mem, journal, nil)
}

func balanceOf(t *testing.T, st store.AccountStore, id string) decimal.Decimal {
	t.Helper()
	snap, err := st.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return snap.Account.Balance
}

func TestTransferHappyPath(t *testing.T) {
	mem, journal, coord := transferFixture()
	ctx := context.Background()

	res, err := coord.Transfer(ctx, "A", "B", decimal.NewFromInt(30))
	require.NoError(t, err)

	assert.True(t, res.Sender.Balance.Equal(decimal.NewFromInt(120)))
	assert.True(t, res.Receiver.Balance.Equal(decimal.NewFromInt(30)))

	// sender leg: negative amount, counterpart is the receiver
	require.NotNil(t, res.SenderTx.ReceiverID)
	assert.Equal(t, "B", *res.SenderTx.ReceiverID)
	assert.True(t, res.SenderTx.Amount.Equal(decimal.NewFromInt(-30)))

	// receiver leg: positive amount, counterpart is the originator
	require.NotNil(t, res.ReceiverTx.ReceiverID)
	assert.Equal(t, "A", *res.ReceiverTx.ReceiverID)
	assert.True(t, res.ReceiverTx.Amount.Equal(decimal.NewFromInt(30)))

	// both legs share the captured clock
	assert.Equal(t, res.SenderTx.DateTime, res.ReceiverTx.DateTime)

	// conservation across the pair
	total := balanceOf(t, mem, "A").Add(balanceOf(t, mem, "B"))
	assert.True(t, total.Equal(decimal.NewFromInt(150)))

	// both records grew by one, newest first
	snap, err := mem.GetAccount(ctx, "A")
	require.NoError(t, err)
	require.Len(t, snap.Account.Transactions, 1)
	assert.True(t, snap.Account.Balance.Equal(snap.Account.Transactions[0].Balance))

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "journal entry completed")
}

func TestTransferUnknownReceiver(t *testing.T) {
	mem, journal, coord := transferFixture()

	_, err := coord.Transfer(context.Background(), "A", "Z", decimal.NewFromInt(30))
	assert.ErrorIs(t, err, ledger.ErrUnknownReceiver)

	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(150)), "no state change")
	pending, _ := journal.Pending(context.Background())
	assert.Empty(t, pending)
}

func TestTransferSameAccount(t *testing.T) {
	mem, _, coord := transferFixture()

	_, err := coord.Transfer(context.Background(), "A", "A", decimal.NewFromInt(30))
	assert.ErrorIs(t, err, ledger.ErrSameAccount)
	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(150)))
}

func TestTransferInsufficientFunds(t *testing.T) {
	mem, _, coord := transferFixture()

	_, err := coord.Transfer(context.Background(), "A", "B", decimal.NewFromInt(151))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.True(t, balanceOf(t, mem, "B").Equal(decimal.Zero))
}

func TestTransferInvalidAmount(t *testing.T) {
	_, _, coord := transferFixture()

	_, err := coord.Transfer(context.Background(), "A", "B", decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestTransferReceiverWriteFailsCleanAbort(t *testing.T) {
	mem, journal, coord := transferFixture()
	mem.PatchHook = func(id string) error {
		if id == "B" {
			return fmt.Errorf("%w: connection refused", store.ErrStoreUnavailable)
		}
		return nil
	}

	_, err := coord.Transfer(context.Background(), "A", "B", decimal.NewFromInt(30))
	require.ErrorIs(t, err, store.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrTransferIncomplete)

	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(150)))
	assert.True(t, balanceOf(t, mem, "B").Equal(decimal.Zero))

	pending, _ := journal.Pending(context.Background())
	assert.Empty(t, pending, "clean abort drops the journal entry")
}

func TestTransferSenderWriteFailsThenReconciles(t *testing.T) {
	mem, journal, coord := transferFixture()
	ctx := context.Background()

	mem.PatchHook = func(id string) error {
		if id == "A" {
			return fmt.Errorf("%w: connection refused", store.ErrStoreUnavailable)
		}
		return nil
	}

	_, err := coord.Transfer(ctx, "A", "B", decimal.NewFromInt(30))
	require.ErrorIs(t, err, ErrTransferIncomplete)

	// the documented gap: receiver credited, sender not debited
	assert.True(t, balanceOf(t, mem, "B").Equal(decimal.NewFromInt(30)))
	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(150)))

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Applied[LegReceiver])
	assert.False(t, pending[0].Applied[LegSender])

	// store recovers; the reconciler finishes the debit
	mem.PatchHook = nil
	require.NoError(t, NewReconciler(mem, journal, nil).Run(ctx))

	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(120)))
	assert.True(t, balanceOf(t, mem, "B").Equal(decimal.NewFromInt(30)))

	pending, _ = journal.Pending(ctx)
	assert.Empty(t, pending)
}

func TestReconcilerIsIdempotent(t *testing.T) {
	mem, journal, coord := transferFixture()
	ctx := context.Background()

	res, err := coord.Transfer(ctx, "A", "B", decimal.NewFromInt(30))
	require.NoError(t, err)

	// re-journal the finished transfer as if the completion mark was
	// lost; a replay must not double-apply either leg
	require.NoError(t, journal.Record(ctx, Entry{
		ID:         res.TransferID,
		SenderID:   "A",
		ReceiverID: "B",
		Amount:     decimal.NewFromInt(30),
		At:         res.SenderTx.DateTime,
	}))

	require.NoError(t, NewReconciler(mem, journal, nil).Run(ctx))

	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(120)))
	assert.True(t, balanceOf(t, mem, "B").Equal(decimal.NewFromInt(30)))

	snap, _ := mem.GetAccount(ctx, "A")
	assert.Len(t, snap.Account.Transactions, 1, "no duplicate leg")
}

func TestRepeatedTransferWithinSameSecond(t *testing.T) {
	mem, journal, coord := transferFixture()
	ctx := context.Background()

	// two distinct transfers that agree on sender, receiver, amount and
	// wire timestamp; both must land
	at := time.Date(2024, 1, 15, 15, 4, 5, 0, time.Local)
	coord.now = func() time.Time { return at }

	for i := 0; i < 2; i++ {
		_, err := coord.Transfer(ctx, "A", "B", decimal.NewFromInt(30))
		require.NoError(t, err)
	}

	assert.True(t, balanceOf(t, mem, "A").Equal(decimal.NewFromInt(90)))
	assert.True(t, balanceOf(t, mem, "B").Equal(decimal.NewFromInt(60)))

	snap, err := mem.GetAccount(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, snap.Account.Transactions, 2)

	pending, _ := journal.Pending(ctx)
	assert.Empty(t, pending)
}

func TestReconcilerLoopStopsOnCancel(t *testing.T) {
	mem, journal, _ := transferFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewReconciler(mem, journal, nil).Loop(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop kept running after cancel")
	}
}

func TestTransferRetriesOnRevisionConflict(t *testing.T) {
	mem, _, coord := transferFixture()
	ctx := context.Background()

	// the sender's first debit write loses a race with a concurrent
	// writer; the retry against a fresh read must still land exactly once
	var conflicted bool
	mem.PatchHook = func(id string) error {
		if id == "A" && !conflicted {
			conflicted = true
			return store.ErrVersionConflict
		}
		return nil
	}

	res, err := coord.Transfer(ctx, "A", "B", decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, res.Sender.Balance.Equal(decimal.NewFromInt(120)))
}
