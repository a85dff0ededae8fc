package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/store"
)

// Reconciler finishes transfers whose journal entry is still pending:
// typically a sender debit that failed after the receiver credit
// landed. Replaying is safe because it runs applyLeg in replay mode,
// which skips any leg whose transaction already sits in the account
// history.
type Reconciler struct {
	store   store.AccountStore
	journal Journal
	log     *zap.Logger
}

func NewReconciler(st store.AccountStore, j Journal, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: st, journal: j, log: log}
}

// Run replays every pending transfer once, receiver leg before sender
// leg. Entries that still cannot be finished stay pending for the next
// run; the first error per entry is collected and all entries are
// attempted.
func (r *Reconciler) Run(ctx context.Context) error {
	entries, err := r.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending transfers: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if err := r.finish(ctx, e); err != nil {
			r.log.Warn("reconcile transfer",
				zap.String("transfer_id", e.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("transfer %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) finish(ctx context.Context, e Entry) error {
	for _, leg := range []Leg{LegReceiver, LegSender} {
		if e.Applied[leg] {
			continue
		}
		if _, _, err := applyLeg(ctx, r.store, r.journal, e, leg, true); err != nil {
			return fmt.Errorf("apply %s leg: %w", leg, err)
		}
		r.log.Info("replayed transfer leg",
			zap.String("transfer_id", e.ID),
			zap.String("leg", string(leg)))
	}
	return r.journal.Complete(ctx, e.ID)
}

// Loop runs Run on a fixed interval until ctx is canceled. The ledger
// service starts it in the background so an incomplete transfer is
// healed without operator action.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.log.Warn("reconcile pass", zap.Error(err))
			}
		}
	}
}
