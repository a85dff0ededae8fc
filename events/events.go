// Package events publishes a message for every transaction the core
// persists. Publishing is fire-and-forget: a broker outage never fails
// the banking operation, it is only logged by the caller.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/AleksandarBuk/go-bank-ledger/ledger"
)

// Subject is the NATS subject transaction events go out on.
const Subject = "ledger.transactions"

// TransactionEvent mirrors the persisted record plus the account it
// belongs to.
type TransactionEvent struct {
	AccountID   string             `json:"accountId"`
	Transaction ledger.Transaction `json:"transaction"`
}

// Publisher emits an event after a transaction has been persisted.
type Publisher interface {
	TransactionRecorded(ctx context.Context, accountID string, tx ledger.Transaction) error
}

// NATSPublisher publishes transaction events to NATS.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) TransactionRecorded(_ context.Context, accountID string, tx ledger.Transaction) error {
	data, err := json.Marshal(TransactionEvent{AccountID: accountID, Transaction: tx})
	if err != nil {
		return fmt.Errorf("encode transaction event: %w", err)
	}
	if err := p.nc.Publish(Subject, data); err != nil {
		return fmt.Errorf("publish transaction event: %w", err)
	}
	return nil
}
