package integration

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hka-pay/payment-service-go/internal/payment"
	"github.com/hka-pay/payment-service-go/internal/testutil"
)

func newService(t *testing.T, repo payment.Repository) *payment.Service {
	t.Helper()
	return payment.NewService(repo, payment.Options{
		Logger: log.New(io.Discard, "", 0),
	})
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestPaymentLifecycle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, _ := testutil.StartPostgres(ctx, t)
	repo := payment.NewPostgresRepository(pool)
	svc := newService(t, repo)

	authorized, err := svc.Authorize(ctx, payment.AuthorizeRequest{
		OrderID: "ORD-1", Amount: dec("149.99"), Currency: "EUR", Method: "CARD",
	}, "")
	require.NoError(t, err)
	require.Equal(t, payment.StatusAuthorized, authorized.Status)

	captured, err := svc.Capture(ctx, payment.CaptureRequest{OrderID: "ORD-1", Amount: dec("149.99")})
	require.NoError(t, err)
	require.Equal(t, payment.StatusCaptured, captured.Status)
	assert.True(t, captured.UpdatedAt.After(authorized.UpdatedAt))
	assert.True(t, captured.CreatedAt.Equal(authorized.CreatedAt))

	refunded, err := svc.Refund(ctx, payment.RefundRequest{OrderID: "ORD-1", Amount: dec("149.99"), Reason: "x"})
	require.NoError(t, err)
	require.Equal(t, payment.StatusRefunded, refunded.Status)

	// Second refund is an idempotent repeat.
	again, err := svc.Refund(ctx, payment.RefundRequest{OrderID: "ORD-1", Amount: dec("149.99"), Reason: "x"})
	require.NoError(t, err)
	require.Equal(t, payment.StatusRefunded, again.Status)
	assert.True(t, again.UpdatedAt.Equal(refunded.UpdatedAt))
}

func TestDeclinedPayment(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, _ := testutil.StartPostgres(ctx, t)
	repo := payment.NewPostgresRepository(pool)
	svc := newService(t, repo)

	declined, err := svc.Authorize(ctx, payment.AuthorizeRequest{
		OrderID: "ORD-2", Amount: dec("2500"), Currency: "EUR", Method: "CARD",
	}, "")
	require.NoError(t, err)
	require.Equal(t, payment.StatusDeclined, declined.Status)

	// The declined record is a real ledger entry.
	stored, err := svc.Get(ctx, "ORD-2")
	require.NoError(t, err)
	require.Equal(t, payment.StatusDeclined, stored.Status)

	_, err = svc.Capture(ctx, payment.CaptureRequest{OrderID: "ORD-2", Amount: dec("2500")})
	var cerr *payment.ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestAuthorizeIdempotency(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, _ := testutil.StartPostgres(ctx, t)
	repo := payment.NewPostgresRepository(pool)
	svc := newService(t, repo)

	first, err := svc.Authorize(ctx, payment.AuthorizeRequest{
		OrderID: "ORD-3", Amount: dec("100"), Currency: "EUR", Method: "CARD",
	}, "key-1")
	require.NoError(t, err)

	// Replaying the key with a different payload returns the stored record.
	second, err := svc.Authorize(ctx, payment.AuthorizeRequest{
		OrderID: "ORD-other", Amount: dec("999"), Currency: "USD", Method: "PAYPAL",
	}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first.Currency, second.Currency)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	// Repeating the order id without a key also short-circuits.
	third, err := svc.Authorize(ctx, payment.AuthorizeRequest{
		OrderID: "ORD-3", Amount: dec("100"), Currency: "EUR", Method: "CARD",
	}, "")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(third.CreatedAt))
}

func TestConcurrentOperationsOnOneOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, _ := testutil.StartPostgres(ctx, t)
	repo := payment.NewPostgresRepository(pool)
	svc := newService(t, repo)

	const workers = 8

	t.Run("concurrent authorize collapses to one record", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([]*payment.Payment, workers)
		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = svc.Authorize(ctx, payment.AuthorizeRequest{
					OrderID: "ORD-C", Amount: dec("50"), Currency: "EUR", Method: "CARD",
				}, "")
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, results[0].ID, results[i].ID)
			assert.True(t, results[0].CreatedAt.Equal(results[i].CreatedAt))
		}
	})

	t.Run("concurrent capture never double-transitions", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Capture(ctx, payment.CaptureRequest{OrderID: "ORD-C", Amount: dec("50")})
			}(i)
		}
		wg.Wait()

		// Every call succeeds: one performs the transition, the rest
		// observe the captured record and repeat idempotently.
		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
		}

		p, err := svc.Get(ctx, "ORD-C")
		require.NoError(t, err)
		require.Equal(t, payment.StatusCaptured, p.Status)
	})
}

func TestCaptureErrorsLeaveLedgerUntouched(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, _ := testutil.StartPostgres(ctx, t)
	repo := payment.NewPostgresRepository(pool)
	svc := newService(t, repo)

	_, err := svc.Capture(ctx, payment.CaptureRequest{OrderID: "ORD-missing", Amount: dec("10")})
	require.ErrorIs(t, err, payment.ErrNotFound)

	authorized, err := svc.Authorize(ctx, payment.AuthorizeRequest{
		OrderID: "ORD-4", Amount: dec("80"), Currency: "EUR", Method: "CARD",
	}, "")
	require.NoError(t, err)

	_, err = svc.Capture(ctx, payment.CaptureRequest{OrderID: "ORD-4", Amount: dec("81")})
	var cerr *payment.ConflictError
	require.ErrorAs(t, err, &cerr)

	stored, err := svc.Get(ctx, "ORD-4")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusAuthorized, stored.Status)
	assert.True(t, stored.UpdatedAt.Equal(authorized.UpdatedAt))

	var verr *payment.ValidationError
	_, err = svc.Capture(ctx, payment.CaptureRequest{OrderID: "ORD-4"})
	require.ErrorAs(t, err, &verr)
}
