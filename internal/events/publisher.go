package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hka-pay/payment-service-go/internal/payment"
)

// SequenceSource hands out monotonic per-partition sequence numbers for
// published events.
type SequenceSource interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// Publisher emits payment domain events on the shared topic exchange.
// It implements payment.EventSink.
type Publisher struct {
	ch       *amqp.Channel
	seq      SequenceSource
	producer string
}

type PublisherOptions struct {
	// Producer defaults to the service name.
	Producer string
}

func NewPublisher(conn *amqp.Connection, seq SequenceSource, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	producer := opts.Producer
	if producer == "" {
		producer = paymentServiceName
	}

	return &Publisher{ch: ch, seq: seq, producer: producer}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PaymentAuthorized(ctx context.Context, pay *payment.Payment) error {
	payload := PaymentAuthorizedPayload{
		OrderID:   pay.OrderID,
		Amount:    pay.Amount.StringFixed(2),
		Currency:  pay.Currency,
		Method:    pay.Method,
		Timestamp: pay.UpdatedAt,
	}
	return publishEvent(ctx, p, EventNamePaymentAuthorized, PaymentAuthorizedRoutingKey, pay.OrderID, payload)
}

func (p *Publisher) PaymentDeclined(ctx context.Context, pay *payment.Payment) error {
	payload := PaymentDeclinedPayload{
		OrderID:   pay.OrderID,
		Amount:    pay.Amount.StringFixed(2),
		Currency:  pay.Currency,
		Method:    pay.Method,
		Timestamp: pay.UpdatedAt,
	}
	return publishEvent(ctx, p, EventNamePaymentDeclined, PaymentDeclinedRoutingKey, pay.OrderID, payload)
}

func (p *Publisher) PaymentCaptured(ctx context.Context, pay *payment.Payment) error {
	payload := PaymentCapturedPayload{
		OrderID:   pay.OrderID,
		Amount:    pay.Amount.StringFixed(2),
		Currency:  pay.Currency,
		Timestamp: pay.UpdatedAt,
	}
	return publishEvent(ctx, p, EventNamePaymentCaptured, PaymentCapturedRoutingKey, pay.OrderID, payload)
}

func (p *Publisher) PaymentRefunded(ctx context.Context, pay *payment.Payment, reason string) error {
	payload := PaymentRefundedPayload{
		OrderID:   pay.OrderID,
		Amount:    pay.Amount.StringFixed(2),
		Currency:  pay.Currency,
		Reason:    reason,
		Timestamp: pay.UpdatedAt,
	}
	return publishEvent(ctx, p, EventNamePaymentRefunded, PaymentRefundedRoutingKey, pay.OrderID, payload)
}

func publishEvent[T any](ctx context.Context, p *Publisher, eventName, routingKey, partitionKey string, payload T) error {
	seq, err := p.seq.NextSequence(ctx, partitionKey)
	if err != nil {
		return fmt.Errorf("next sequence for %s: %w", partitionKey, err)
	}

	env := newEnvelope(eventName, p.producer, partitionKey, seq, payload, time.Now().UTC())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventName, err)
	}

	return p.publishJSON(ctx, routingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
