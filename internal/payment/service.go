package payment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LogSink receives human-readable operation log lines, typically bound
// for an external queue. Implementations must be fire-and-forget: a
// failed publish must never fail the payment operation.
type LogSink interface {
	Publish(ctx context.Context, line string)
}

// EventSink publishes domain events after a successful ledger write.
// Errors are logged and dropped by the service.
type EventSink interface {
	PaymentAuthorized(ctx context.Context, p *Payment) error
	PaymentDeclined(ctx context.Context, p *Payment) error
	PaymentCaptured(ctx context.Context, p *Payment) error
	PaymentRefunded(ctx context.Context, p *Payment, reason string) error
}

// Service owns the authorize/capture/refund flow: validation,
// idempotency resolution and the status transitions, on top of the
// ledger Repository. The decision logic itself is pure; only the
// repository provides atomicity.
type Service struct {
	repo   Repository
	policy AuthorizePolicy
	logs   LogSink
	events EventSink
	logger *log.Logger
	now    func() time.Time
}

type Options struct {
	// Policy defaults to DefaultPolicy (2000-unit threshold).
	Policy AuthorizePolicy
	Logs   LogSink
	Events EventSink
	Logger *log.Logger
}

func NewService(repo Repository, opts Options) *Service {
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:   repo,
		policy: policy,
		logs:   opts.Logs,
		events: opts.Events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authorize creates the ledger record for an order, or returns the
// existing one when the idempotency key or order id has been seen
// before. A replayed key wins over the payload: the stored record is
// returned as-is even if the replay carries different values.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest, idempotencyKey string) (*Payment, error) {
	s.logLine(ctx, "authorize request orderId=%s amount=%s currency=%s idempotencyKey=%s",
		req.OrderID, amountString(req.Amount), req.Currency, idempotencyKey)

	if err := validateAuthorize(req); err != nil {
		return nil, err
	}

	existing, err := s.findIdempotent(ctx, idempotencyKey, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logLine(ctx, "idempotent authorize hit for order %s", existing.OrderID)
		return existing, nil
	}

	now := s.now()
	p := &Payment{
		ID:             uuid.NewString(),
		OrderID:        req.OrderID,
		Amount:         *req.Amount,
		Currency:       req.Currency,
		Method:         req.Method,
		Status:         s.policy(*req.Amount),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	stored, created, err := s.repo.CreateIfAbsent(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the race or raced our own lookup; the first writer's
		// record is authoritative.
		s.logLine(ctx, "existing payment reused for order %s", stored.OrderID)
		return stored, nil
	}

	s.logLine(ctx, "authorization %s for order %s", stored.Status, stored.OrderID)
	if stored.Status == StatusDeclined {
		s.emit(ctx, "PaymentDeclined", func() error { return s.events.PaymentDeclined(ctx, stored) })
	} else {
		s.emit(ctx, "PaymentAuthorized", func() error { return s.events.PaymentAuthorized(ctx, stored) })
	}
	return stored, nil
}

// Capture moves an AUTHORIZED payment to CAPTURED. The submitted amount
// must exactly match the authorized amount; repeating a capture returns
// the current record unchanged.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*Payment, error) {
	s.logLine(ctx, "capture request orderId=%s amount=%s", req.OrderID, amountString(req.Amount))

	if req.OrderID == "" {
		return nil, validationf("orderId required")
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	changed := false
	p, err := s.repo.Transition(ctx, req.OrderID, func(p *Payment) (bool, error) {
		var err error
		changed, err = capture(p, *req.Amount, s.now())
		return changed, err
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		s.logLine(ctx, "capture idempotent for order %s", p.OrderID)
		return p, nil
	}

	s.logLine(ctx, "payment captured for order %s", p.OrderID)
	s.emit(ctx, "PaymentCaptured", func() error { return s.events.PaymentCaptured(ctx, p) })
	return p, nil
}

// Refund moves an AUTHORIZED or CAPTURED payment to REFUNDED. Repeating
// a refund returns the current record unchanged. The reason is logged
// and carried on the event but not persisted.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*Payment, error) {
	s.logLine(ctx, "refund request orderId=%s amount=%s reason=%s",
		req.OrderID, amountString(req.Amount), req.Reason)

	if req.OrderID == "" {
		return nil, validationf("orderId required")
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	changed := false
	p, err := s.repo.Transition(ctx, req.OrderID, func(p *Payment) (bool, error) {
		var err error
		changed, err = refund(p, s.now())
		return changed, err
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		s.logLine(ctx, "refund idempotent for order %s", p.OrderID)
		return p, nil
	}

	s.logLine(ctx, "payment refunded for order %s", p.OrderID)
	s.emit(ctx, "PaymentRefunded", func() error { return s.events.PaymentRefunded(ctx, p, req.Reason) })
	return p, nil
}

// Get returns the ledger record for an order id.
func (s *Service) Get(ctx context.Context, orderID string) (*Payment, error) {
	if orderID == "" {
		return nil, validationf("orderId required")
	}
	p, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) findIdempotent(ctx context.Context, key, orderID string) (*Payment, error) {
	if key != "" {
		return s.repo.FindByIdempotencyKey(ctx, key)
	}
	return s.repo.FindByOrderID(ctx, orderID)
}

func (s *Service) logLine(ctx context.Context, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.logger.Print(line)
	if s.logs != nil {
		s.logs.Publish(ctx, line)
	}
}

func (s *Service) emit(ctx context.Context, name string, publish func() error) {
	if s.events == nil {
		return
	}
	if err := publish(); err != nil {
		s.logger.Printf("publish %s: %v", name, err)
	}
}

func validateAuthorize(req AuthorizeRequest) error {
	if req.OrderID == "" {
		return validationf("orderId required")
	}
	if err := validateAmount(req.Amount); err != nil {
		return err
	}
	if len(req.Currency) != 3 {
		return validationf("currency must be a 3-letter ISO 4217 code")
	}
	if req.Method == "" {
		return validationf("method required")
	}
	return nil
}

func validateAmount(amount *decimal.Decimal) error {
	if amount == nil || !amount.IsPositive() {
		return validationf("amount must be > 0")
	}
	return nil
}

func amountString(amount *decimal.Decimal) string {
	if amount == nil {
		return "<nil>"
	}
	return amount.String()
}
