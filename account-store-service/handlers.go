package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
)

// backend is the store implementation behind the HTTP surface. The
// create operation is a seeding convenience; the ledger core itself
// never creates accounts.
type backend interface {
	store.AccountStore
	CreateAccount(ctx context.Context, acct ledger.Account) error
}

type storeAPI struct {
	db  backend
	log *zap.Logger
}

func newStoreAPI(db backend, log *zap.Logger) *storeAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &storeAPI{db: db, log: log}
}

func (s *storeAPI) routes(r *mux.Router) {
	r.HandleFunc("/accounts", s.listAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts", s.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}", s.getAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}", s.patchAccount).Methods(http.MethodPatch)
}

func (s *storeAPI) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.db.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *storeAPI) createAccount(w http.ResponseWriter, r *http.Request) {
	var acct ledger.Account
	if err := json.NewDecoder(r.Body).Decode(&acct); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if acct.ID == "" {
		http.Error(w, "account id is required", http.StatusBadRequest)
		return
	}

	if err := s.db.CreateAccount(r.Context(), acct); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *storeAPI) getAccount(w http.ResponseWriter, r *http.Request) {
	snap, err := s.db.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("ETag", `"`+snap.Revision+`"`)
	writeJSON(w, http.StatusOK, snap.Account)
}

// patchAccount merge-updates balance and transactions only; id and
// holder are immutable here no matter what the body carries. An
// If-Match header makes the write conditional on the revision it names.
func (s *storeAPI) patchAccount(w http.ResponseWriter, r *http.Request) {
	var patch store.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	revision := strings.Trim(r.Header.Get("If-Match"), `"`)

	newRev, err := s.db.PatchAccount(r.Context(), id, revision, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.db.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("ETag", `"`+newRev+`"`)
	writeJSON(w, http.StatusOK, snap.Account)
}

func (s *storeAPI) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		status = http.StatusPreconditionFailed
	case errors.Is(err, store.ErrExists):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("store request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
