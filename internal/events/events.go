package events

import (
	"time"

	"github.com/jordidiaz04/transactions/internal/model"
)

// Event types
const (
	TransactionCreated = "transaction.created"
)

// Stream names
const (
	TransactionEventsStream = "transaction.events"
)

// Event is the envelope written to the Redis stream.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// TransactionCreatedEvent is emitted after a record has been durably appended
// to the ledger. Consumers must tolerate duplicate delivery.
type TransactionCreatedEvent struct {
	TransactionID string           `json:"transactionId"`
	ProductID     string           `json:"productId"`
	Collection    model.Collection `json:"collection"`
	Direction     model.Direction  `json:"direction"`
	Amount        string           `json:"amount"`
	Commission    string           `json:"commission,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
}
