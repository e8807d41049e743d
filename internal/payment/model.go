package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is the authoritative ledger record for one order. Everything
// except Status and UpdatedAt is write-once.
type Payment struct {
	ID             string          `json:"-"`
	OrderID        string          `json:"orderId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         string          `json:"method"`
	Status         Status          `json:"status"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type AuthorizeRequest struct {
	OrderID  string           `json:"orderId"`
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
	Method   string           `json:"method"`
}

type CaptureRequest struct {
	OrderID string           `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount"`
}

type RefundRequest struct {
	OrderID string           `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount"`
	Reason  string           `json:"reason"`
}
