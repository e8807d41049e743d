package integration

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hka-pay/payment-service-go/internal/events"
	"github.com/hka-pay/payment-service-go/internal/payment"
	"github.com/hka-pay/payment-service-go/internal/testutil"
)

type stubSequence struct {
	n atomic.Int64
}

func (s *stubSequence) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	return s.n.Add(1), nil
}

func receive(t *testing.T, msgs <-chan amqp.Delivery) amqp.Delivery {
	t.Helper()
	select {
	case msg := <-msgs:
		return msg
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for message")
		return amqp.Delivery{}
	}
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	conn := testutil.StartRabbitMQ(t)

	logger := log.New(io.Discard, "", 0)
	pub, err := events.NewLogPublisher(conn, logger)
	require.NoError(t, err)
	defer pub.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msgs, err := ch.Consume(events.LogQueue, "test-consumer", true, false, false, false, nil)
	require.NoError(t, err)

	pub.Publish(context.Background(), "authorize request orderId=ORD-1 amount=149.99")

	msg := receive(t, msgs)
	assert.Equal(t, "[PS] authorize request orderId=ORD-1 amount=149.99", string(msg.Body))
}

func TestEventPublisher(t *testing.T) {
	t.Parallel()

	conn := testutil.StartRabbitMQ(t)

	pub, err := events.NewPublisher(conn, &stubSequence{}, events.PublisherOptions{})
	require.NoError(t, err)
	defer pub.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, events.PaymentCapturedRoutingKey, events.EventsExchange, false, nil))

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	p := &payment.Payment{
		OrderID:   "ORD-1",
		Amount:    decimal.RequireFromString("149.99"),
		Currency:  "EUR",
		Method:    "CARD",
		Status:    payment.StatusCaptured,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, pub.PaymentCaptured(context.Background(), p))

	msg := receive(t, msgs)

	var env events.EventEnvelope[events.PaymentCapturedPayload]
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	require.NoError(t, env.Validate(events.EventNamePaymentCaptured, 1))
	assert.Equal(t, "ORD-1", env.PartitionKey)
	assert.Equal(t, int64(1), env.Sequence)
	assert.Equal(t, "149.99", env.Payload.Amount)
	assert.Equal(t, "EUR", env.Payload.Currency)
}
