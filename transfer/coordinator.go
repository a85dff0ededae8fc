package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
)

// ErrTransferIncomplete reports a transfer whose receiver was credited
// but whose sender debit did not land. The journal entry stays pending
// and the reconciler finishes the debit on its next run.
var ErrTransferIncomplete = errors.New("transfer incomplete: receiver credited, sender debit pending")

// conflictRetries bounds the re-read/re-apply loop when a leg's patch
// hits a stale revision.
const conflictRetries = 3

// Result carries both post-transfer records and the legs that were
// written, so callers can refresh state and publish events without
// another store read.
type Result struct {
	TransferID string
	Sender     ledger.Account
	Receiver   ledger.Account
	SenderTx   ledger.Transaction
	ReceiverTx ledger.Transaction
}

// Coordinator makes a transfer appear atomic to the caller while it is
// really two independent remote writes. Protocol: validate against the
// sender, journal the transfer, credit the receiver, debit the sender,
// complete the journal. The receiver is always written first; a
// failure before its write is a clean abort, a failure after it
// surfaces as ErrTransferIncomplete.
type Coordinator struct {
	store   store.AccountStore
	journal Journal
	log     *zap.Logger
	now     func() time.Time
}

func NewCoordinator(st store.AccountStore, j Journal, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: st, journal: j, log: log, now: time.Now}
}

// Transfer moves amount from senderID to receiverID.
func (c *Coordinator) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (Result, error) {
	if senderID == receiverID {
		return Result{}, ledger.ErrSameAccount
	}

	sender, err := c.store.GetAccount(ctx, senderID)
	if err != nil {
		return Result{}, fmt.Errorf("read sender: %w", err)
	}

	known, err := c.knownIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := ledger.Validate(ledger.TypeTransfer, amount, sender.Account.Balance, receiverID, known); err != nil {
		return Result{}, err
	}

	entry := Entry{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		At:         c.now(),
	}
	if err := c.journal.Record(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("journal transfer: %w", err)
	}

	receiver, recvTx, err := applyLeg(ctx, c.store, c.journal, entry, LegReceiver, false)
	if err != nil {
		// nothing was written; drop the record and abort cleanly
		_ = c.journal.Cancel(ctx, entry.ID)
		return Result{}, fmt.Errorf("credit receiver: %w", err)
	}

	senderAcct, sendTx, err := applyLeg(ctx, c.store, c.journal, entry, LegSender, false)
	if err != nil {
		c.log.Error("sender debit failed after receiver credit",
			zap.String("transfer_id", entry.ID),
			zap.String("sender", senderID),
			zap.String("receiver", receiverID),
			zap.Error(err))
		return Result{}, fmt.Errorf("%w (transfer %s): %v", ErrTransferIncomplete, entry.ID, err)
	}

	if err := c.journal.Complete(ctx, entry.ID); err != nil {
		// both legs landed; the reconciler will recognize them and
		// finish the bookkeeping
		c.log.Warn("complete transfer journal", zap.String("transfer_id", entry.ID), zap.Error(err))
	}

	return Result{
		TransferID: entry.ID,
		Sender:     senderAcct,
		Receiver:   receiver,
		SenderTx:   sendTx,
		ReceiverTx: recvTx,
	}, nil
}

func (c *Coordinator) knownIDs(ctx context.Context) ([]string, error) {
	accounts, err := c.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// applyLeg applies one side of a journaled transfer and marks it.
// Stale-revision conflicts are retried against a fresh read; on retry
// the sender leg re-checks funds so the balance can never go negative.
//
// With replay set, a leg whose transaction already sits in the account
// history is skipped, which lets the reconciler re-run a half-finished
// transfer safely. A first-pass write never consults the history: a
// distinct transfer between the same accounts can legitimately repeat
// the amount and the wire timestamp, and must still land.
func applyLeg(ctx context.Context, st store.AccountStore, j Journal, e Entry, leg Leg, replay bool) (ledger.Account, ledger.Transaction, error) {
	dir, counter := ledger.DirectionIn, e.SenderID
	accountID := e.ReceiverID
	if leg == LegSender {
		dir, counter = ledger.DirectionOut, e.ReceiverID
		accountID = e.SenderID
	}

	for attempt := 0; ; attempt++ {
		snap, err := st.GetAccount(ctx, accountID)
		if err != nil {
			return ledger.Account{}, ledger.Transaction{}, err
		}

		if replay {
			if tx, ok := legRecorded(snap.Account.Transactions, e, leg); ok {
				_ = j.MarkApplied(ctx, e.ID, leg)
				return snap.Account, tx, nil
			}
		}

		if leg == LegSender && e.Amount.GreaterThan(snap.Account.Balance) {
			return ledger.Account{}, ledger.Transaction{}, ledger.ErrInsufficientFunds
		}

		balance, tx := ledger.Apply(snap.Account.Balance, ledger.TypeTransfer, dir, e.Amount, e.At, counter)
		acct := snap.Account
		acct.Balance = balance
		acct.Transactions = ledger.Prepend(acct.Transactions, tx)

		_, err = st.PatchAccount(ctx, accountID, snap.Revision, store.Patch{
			Balance:      balance,
			Transactions: acct.Transactions,
		})
		if errors.Is(err, store.ErrVersionConflict) && attempt < conflictRetries {
			continue
		}
		if err != nil {
			return ledger.Account{}, ledger.Transaction{}, err
		}

		_ = j.MarkApplied(ctx, e.ID, leg)
		return acct, tx, nil
	}
}

// legRecorded reports whether the history already holds this leg of
// the transfer. Timestamps are compared in their wire form because a
// history that traveled through the store has second precision and no
// zone.
func legRecorded(history []ledger.Transaction, e Entry, leg Leg) (ledger.Transaction, bool) {
	counter, amount := e.SenderID, e.Amount
	if leg == LegSender {
		counter, amount = e.ReceiverID, e.Amount.Neg()
	}
	stamp := e.At.Format(ledger.WireTimeLayout)

	for _, tx := range history {
		if tx.Type != ledger.TypeTransfer || tx.ReceiverID == nil {
			continue
		}
		if *tx.ReceiverID == counter && tx.Amount.Equal(amount) && tx.DateTime.Format(ledger.WireTimeLayout) == stamp {
			return tx, true
		}
	}
	return ledger.Transaction{}, false
}
