package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusRefunded   Status = "REFUNDED"
	StatusDeclined   Status = "DECLINED"
)

// AuthorizePolicy decides the initial status for an already validated
// authorize amount. It stands in for a real risk/fraud check and must
// stay a pure function so it can be swapped without touching the
// ledger flow.
type AuthorizePolicy func(amount decimal.Decimal) Status

// ThresholdPolicy authorizes any positive amount up to limit and
// declines everything above it.
func ThresholdPolicy(limit decimal.Decimal) AuthorizePolicy {
	return func(amount decimal.Decimal) Status {
		if amount.IsPositive() && amount.LessThanOrEqual(limit) {
			return StatusAuthorized
		}
		return StatusDeclined
	}
}

// DefaultPolicy is the stock 2000-unit threshold.
var DefaultPolicy = ThresholdPolicy(decimal.NewFromInt(2000))

// capture applies the capture transition to p in place. It reports
// whether the record changed; an idempotent repeat returns (false, nil)
// and leaves p untouched, including UpdatedAt.
func capture(p *Payment, amount decimal.Decimal, now time.Time) (bool, error) {
	if !p.Amount.Equal(amount) {
		return false, conflictf("capture amount %s does not match authorized amount %s", amount, p.Amount)
	}
	switch p.Status {
	case StatusCaptured:
		return false, nil
	case StatusAuthorized:
		p.Status = StatusCaptured
		p.UpdatedAt = now
		return true, nil
	default:
		return false, conflictf("payment for order %s is %s, not AUTHORIZED", p.OrderID, p.Status)
	}
}

// refund applies the refund transition to p in place, with the same
// changed/idempotent contract as capture.
func refund(p *Payment, now time.Time) (bool, error) {
	switch p.Status {
	case StatusRefunded:
		return false, nil
	case StatusAuthorized, StatusCaptured:
		p.Status = StatusRefunded
		p.UpdatedAt = now
		return true, nil
	default:
		return false, conflictf("payment for order %s cannot be refunded from state %s", p.OrderID, p.Status)
	}
}
