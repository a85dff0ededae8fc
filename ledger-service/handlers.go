package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/session"
	"github.com/AleksandarBuk/go-bank-ledger/store"
	"github.com/AleksandarBuk/go-bank-ledger/transfer"
)

type api struct {
	mgr      *session.Manager
	pageSize int
	log      *zap.Logger
}

func newAPI(mgr *session.Manager, pageSize int, log *zap.Logger) *api {
	if log == nil {
		log = zap.NewNop()
	}
	if pageSize < 1 {
		pageSize = session.DefaultPageSize
	}
	return &api{mgr: mgr, pageSize: pageSize, log: log}
}

func (a *api) routes(r *mux.Router) {
	r.HandleFunc("/accounts", a.listAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}", a.getAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/deposit", a.deposit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}/withdraw", a.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}/transfer", a.transfer).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}/statement", a.statement).Methods(http.MethodGet)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	ReceiverID string          `json:"receiverId"`
	Amount     decimal.Decimal `json:"amount"`
}

type statementResponse struct {
	Transactions []ledger.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	TotalPages   int                  `json:"totalPages"`
}

func (a *api) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.mgr.Accounts(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (a *api) getAccount(w http.ResponseWriter, r *http.Request) {
	s, err := a.attach(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountOf(s))
}

func (a *api) deposit(w http.ResponseWriter, r *http.Request) {
	a.mutate(w, r, a.mgr.Deposit)
}

func (a *api) withdraw(w http.ResponseWriter, r *http.Request) {
	a.mutate(w, r, a.mgr.Withdraw)
}

func (a *api) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, session.Session, decimal.Decimal) (session.Session, error)) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	s, err := a.attach(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	s, err = op(r.Context(), s, req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountOf(s))
}

func (a *api) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	s, err := a.attach(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	s, err = a.mgr.Transfer(r.Context(), s, req.ReceiverID, req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountOf(s))
}

func (a *api) statement(w http.ResponseWriter, r *http.Request) {
	s, err := a.attach(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	q := r.URL.Query()

	var filter ledger.StatementFilter
	switch typ := ledger.Type(q.Get("type")); typ {
	case "", ledger.TypeDeposit, ledger.TypeWithdrawal, ledger.TypeTransfer:
		filter.Type = typ
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown transaction type"})
		return
	}
	if filter.Start, err = parseDateParam(q.Get("start")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start date"})
		return
	}
	if filter.End, err = parseDateParam(q.Get("end")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid end date"})
		return
	}
	s = s.SetFilter(filter)

	if order := q.Get("sort"); order == string(ledger.SortAsc) {
		s = s.SetSort(ledger.SortAsc)
	}

	// the statement query leaves clamping to its caller; out-of-range
	// requests land on the nearest valid page
	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		s.Page = p
	}
	if _, total := s.Statement(); total > 0 && s.Page > total {
		s = s.LastPage()
	}
	if s.Page < 1 {
		s = s.FirstPage()
	}

	page, total := s.Statement()
	writeJSON(w, http.StatusOK, statementResponse{
		Transactions: page,
		Page:         s.Page,
		TotalPages:   total,
	})
}

func (a *api) attach(r *http.Request) (session.Session, error) {
	s, err := a.mgr.Attach(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return s, err
	}
	s.PageSize = a.pageSize
	return s, nil
}

func accountOf(s session.Session) ledger.Account {
	return ledger.Account{
		ID:           s.AccountID,
		Holder:       s.Holder,
		Balance:      s.Balance,
		Transactions: s.History,
	}
}

// parseDateParam accepts the date-input format the statement view
// sends and RFC 3339 for API callers.
func parseDateParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if at, err := time.Parse("2006-01-02", v); err == nil {
		return &at, nil
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &at, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrUnknownReceiver),
		errors.Is(err, ledger.ErrSameAccount):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, store.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, transfer.ErrTransferIncomplete),
		errors.Is(err, store.ErrStoreUnavailable):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
