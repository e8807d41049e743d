package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventNamePaymentAuthorized = "PaymentAuthorized"
	EventNamePaymentDeclined   = "PaymentDeclined"
	EventNamePaymentCaptured   = "PaymentCaptured"
	EventNamePaymentRefunded   = "PaymentRefunded"

	paymentEventVersion = 1
)

// PaymentAuthorizedPayload is emitted when an authorize call creates an
// AUTHORIZED ledger record.
type PaymentAuthorizedPayload struct {
	OrderID   string    `json:"orderId"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentDeclinedPayload is emitted when an authorize call records a
// DECLINED payment.
type PaymentDeclinedPayload struct {
	OrderID   string    `json:"orderId"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentCapturedPayload struct {
	OrderID   string    `json:"orderId"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentRefundedPayload struct {
	OrderID   string    `json:"orderId"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEnvelope[T any](eventName string, producer, partitionKey string, seq int64, payload T, occurredAt time.Time) EventEnvelope[T] {
	return EventEnvelope[T]{
		EventName:    eventName,
		EventVersion: paymentEventVersion,
		EventID:      uuid.NewString(),
		Producer:     producer,
		PartitionKey: partitionKey,
		Sequence:     seq,
		OccurredAt:   occurredAt,
		Schema:       eventName + "/v1",
		Payload:      payload,
	}
}
