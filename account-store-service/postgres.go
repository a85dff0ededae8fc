package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id           TEXT PRIMARY KEY,
    holder       TEXT NOT NULL,
    balance      NUMERIC(20,4) NOT NULL DEFAULT 0,
    transactions JSONB NOT NULL DEFAULT '[]',
    revision     BIGINT NOT NULL DEFAULT 1
)`

// pgStore keeps accounts in Postgres. The transaction history rides in
// a JSONB column because the store contract replaces it wholesale on
// every patch; the revision column implements the compare-and-swap.
type pgStore struct {
	db *sql.DB
}

func newPGStore(db *sql.DB) (*pgStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create accounts table: %w", err)
	}
	return &pgStore{db: db}, nil
}

func (s *pgStore) CreateAccount(ctx context.Context, acct ledger.Account) error {
	history, err := json.Marshal(acct.Transactions)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, holder, balance, transactions) VALUES ($1, $2, $3, $4)`,
		acct.ID, acct.Holder, acct.Balance, history)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return store.ErrExists
	}
	return err
}

func (s *pgStore) ListAccounts(ctx context.Context) ([]ledger.AccountSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, holder, balance FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.AccountSummary
	for rows.Next() {
		var a ledger.AccountSummary
		if err := rows.Scan(&a.ID, &a.Holder, &a.Balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *pgStore) GetAccount(ctx context.Context, id string) (store.Snapshot, error) {
	var (
		acct     = ledger.Account{ID: id}
		history  []byte
		revision int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT holder, balance, transactions, revision FROM accounts WHERE id = $1`, id).
		Scan(&acct.Holder, &acct.Balance, &history, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, store.ErrNotFound
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read account %s: %w", id, err)
	}

	if err := json.Unmarshal(history, &acct.Transactions); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode history for %s: %w", id, err)
	}
	return store.Snapshot{Account: acct, Revision: strconv.FormatInt(revision, 10)}, nil
}

func (s *pgStore) PatchAccount(ctx context.Context, id, revision string, patch store.Patch) (string, error) {
	history, err := json.Marshal(patch.Transactions)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}

	var newRev int64
	if revision == "" {
		err = s.db.QueryRowContext(ctx,
			`UPDATE accounts SET balance = $2, transactions = $3, revision = revision + 1
			 WHERE id = $1 RETURNING revision`,
			id, patch.Balance, history).Scan(&newRev)
	} else {
		rev, parseErr := strconv.ParseInt(revision, 10, 64)
		if parseErr != nil {
			return "", store.ErrVersionConflict
		}
		err = s.db.QueryRowContext(ctx,
			`UPDATE accounts SET balance = $2, transactions = $3, revision = revision + 1
			 WHERE id = $1 AND revision = $4 RETURNING revision`,
			id, patch.Balance, history, rev).Scan(&newRev)
	}

	if errors.Is(err, sql.ErrNoRows) {
		// distinguish a missing account from a stale revision
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return "", checkErr
		}
		if exists {
			return "", store.ErrVersionConflict
		}
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("write account %s: %w", id, err)
	}
	return strconv.FormatInt(newRev, 10), nil
}
