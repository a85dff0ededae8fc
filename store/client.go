package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
)

// Client talks to a remote account store over HTTP. Revisions ride on
// ETag/If-Match headers; a circuit breaker keeps a dead store from
// hanging every operation behind its timeout.
type Client struct {
	baseURL string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a client for the store at baseURL. httpc may be nil
// for a default client with a 10s timeout.
func NewClient(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "account-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// ListAccounts fetches the account summaries from GET /accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]ledger.AccountSummary, error) {
	var out []ledger.AccountSummary
	if _, err := c.do(ctx, http.MethodGet, "/accounts", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount fetches one full record from GET /accounts/{id}.
func (c *Client) GetAccount(ctx context.Context, id string) (Snapshot, error) {
	var acct ledger.Account
	rev, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(id), "", nil, &acct)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Account: acct, Revision: rev}, nil
}

// PatchAccount merge-updates balance and transactions via
// PATCH /accounts/{id}. A non-empty revision is sent as If-Match and a
// stale one surfaces as ErrVersionConflict.
func (c *Client) PatchAccount(ctx context.Context, id, revision string, patch Patch) (string, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return "", fmt.Errorf("encode patch: %w", err)
	}
	return c.do(ctx, http.MethodPatch, "/accounts/"+url.PathEscape(id), revision, body, nil)
}

type doResult struct {
	status int
	etag   string
	body   []byte
}

// do runs one request through the breaker. Only transport errors and
// 5xx responses count as breaker failures; domain statuses (404, 412)
// pass through as store sentinel errors.
func (c *Client) do(ctx context.Context, method, path, ifMatch string, body []byte, out any) (string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", `"`+ifMatch+`"`)
	}

	v, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrStoreUnavailable, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: store returned %s", ErrStoreUnavailable, resp.Status)
		}
		return doResult{
			status: resp.StatusCode,
			etag:   strings.Trim(resp.Header.Get("ETag"), `"`),
			body:   data,
		}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return "", err
	}

	res := v.(doResult)
	switch {
	case res.status == http.StatusNotFound:
		return "", ErrNotFound
	case res.status == http.StatusPreconditionFailed:
		return "", ErrVersionConflict
	case res.status >= http.StatusBadRequest:
		return "", fmt.Errorf("store returned %d: %s", res.status, strings.TrimSpace(string(res.body)))
	}

	if out != nil {
		if err := json.Unmarshal(res.body, out); err != nil {
			return "", fmt.Errorf("decode store response: %w", err)
		}
	}
	return res.etag, nil
}
