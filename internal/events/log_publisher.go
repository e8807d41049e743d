package events

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const logLinePrefix = "[PS] "

// LogPublisher pushes human-readable operation log lines to the shared
// log queue. Publishing is strictly best-effort: failures are logged
// locally and never surface to the payment flow. It implements
// payment.LogSink.
type LogPublisher struct {
	ch     *amqp.Channel
	logger *log.Logger
}

func NewLogPublisher(conn *amqp.Connection, logger *log.Logger) (*LogPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare the queue so publish never fails due to missing infra.
	if _, err := ch.QueueDeclare(LogQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", LogQueue, err)
	}

	return &LogPublisher{ch: ch, logger: logger}, nil
}

func (p *LogPublisher) Close() error {
	return p.ch.Close()
}

func (p *LogPublisher) Publish(ctx context.Context, line string) {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := p.ch.PublishWithContext(
		pubCtx,
		"", // default exchange
		LogQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(logLinePrefix + line),
		},
	)
	if err != nil {
		p.logger.Printf("publish log line: %v", err)
	}
}
