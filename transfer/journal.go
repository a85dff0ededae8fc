// Package transfer coordinates a transfer as two single-account
// mutations against the account store. Because the store offers no
// multi-key transactions, the coordinator runs a small saga: the
// transfer is journaled before any write, each leg is marked as it is
// applied, and a reconciler replays anything left half-done.
package transfer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Leg identifies one side of a transfer. The receiver leg is always
// applied first, so a crash can only leave the receiver credited with
// the sender not yet debited, never the reverse.
type Leg string

const (
	LegReceiver Leg = "receiver"
	LegSender   Leg = "sender"
)

// Entry is the journal record for one transfer: the pending-transfer
// record of the saga. At is the single wall-clock timestamp both legs
// share.
type Entry struct {
	ID         string
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
	At         time.Time
	Applied    map[Leg]bool
	Done       bool
}

// ErrEntryNotFound is returned for journal operations on an unknown id.
var ErrEntryNotFound = errors.New("transfer journal entry not found")

// Journal records pending transfers so half-applied ones stay
// detectable and replayable. Implementations must tolerate marking a
// leg that is already marked.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	MarkApplied(ctx context.Context, id string, leg Leg) error
	Complete(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]Entry, error)
}

// MemoryJournal is a process-local Journal. It survives for the life
// of the service, which is enough for the in-process reconcile loop;
// a durable backend can replace it without touching the coordinator.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]*Entry)}
}

func (j *MemoryJournal) Record(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cp := e
	cp.Applied = make(map[Leg]bool, 2)
	for leg, ok := range e.Applied {
		cp.Applied[leg] = ok
	}
	j.entries[e.ID] = &cp
	return nil
}

func (j *MemoryJournal) MarkApplied(_ context.Context, id string, leg Leg) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Applied[leg] = true
	return nil
}

func (j *MemoryJournal) Complete(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Done = true
	return nil
}

func (j *MemoryJournal) Cancel(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.entries, id)
	return nil
}

// Pending returns entries that are neither completed nor canceled,
// oldest first.
func (j *MemoryJournal) Pending(context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.Done {
			continue
		}
		cp := *e
		cp.Applied = make(map[Leg]bool, len(e.Applied))
		for leg, ok := range e.Applied {
			cp.Applied[leg] = ok
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].At.Before(out[k].At) })
	return out, nil
}
