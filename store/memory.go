package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
)

// Memory is an in-memory AccountStore with the same revision and
// merge-patch semantics as the HTTP store. It backs the reference
// store service when no database is configured and serves as the test
// double everywhere else.
type Memory struct {
	mu    sync.Mutex
	accts map[string]*memAccount

	// PatchHook, when set, runs before a patch is applied. Tests use
	// it to inject store failures on specific accounts.
	PatchHook func(id string) error
}

type memAccount struct {
	acct ledger.Account
	rev  int64
}

// NewMemory builds a store seeded with the given accounts.
func NewMemory(seed ...ledger.Account) *Memory {
	m := &Memory{accts: make(map[string]*memAccount, len(seed))}
	for _, a := range seed {
		m.accts[a.ID] = &memAccount{acct: copyAccount(a), rev: 1}
	}
	return m
}

// CreateAccount registers a new account record.
func (m *Memory) CreateAccount(_ context.Context, acct ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accts[acct.ID]; exists {
		return ErrExists
	}
	m.accts[acct.ID] = &memAccount{acct: copyAccount(acct), rev: 1}
	return nil
}

// ListAccounts returns summaries ordered by account id.
func (m *Memory) ListAccounts(context.Context) ([]ledger.AccountSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ledger.AccountSummary, 0, len(m.accts))
	for _, a := range m.accts {
		out = append(out, a.acct.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAccount returns a copy of the record and its current revision.
func (m *Memory) GetAccount(_ context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accts[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{
		Account:  copyAccount(a.acct),
		Revision: strconv.FormatInt(a.rev, 10),
	}, nil
}

// PatchAccount merge-updates balance and transactions. A non-empty
// revision must match the stored one (compare-and-swap); id and holder
// are never touched.
func (m *Memory) PatchAccount(_ context.Context, id, revision string, patch Patch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accts[id]
	if !ok {
		return "", ErrNotFound
	}
	if m.PatchHook != nil {
		if err := m.PatchHook(id); err != nil {
			return "", err
		}
	}
	if revision != "" && revision != strconv.FormatInt(a.rev, 10) {
		return "", ErrVersionConflict
	}

	a.acct.Balance = patch.Balance
	a.acct.Transactions = append([]ledger.Transaction(nil), patch.Transactions...)
	a.rev++
	return strconv.FormatInt(a.rev, 10), nil
}

func copyAccount(a ledger.Account) ledger.Account {
	cp := a
	cp.Transactions = append([]ledger.Transaction(nil), a.Transactions...)
	return cp
}
