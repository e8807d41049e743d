package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// parseAmount converts the textual NUMERIC representation coming back
// from Postgres into a decimal.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}
