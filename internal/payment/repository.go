package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is the persistent payment ledger. Find methods return
// (nil, nil) when no record exists.
type Repository interface {
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// CreateIfAbsent inserts p unless a record for its order id or
	// idempotency key already exists, in which case the stored record
	// wins. The returned bool reports whether p was actually created.
	CreateIfAbsent(ctx context.Context, p *Payment) (*Payment, bool, error)

	// Transition runs apply against the current record for orderID
	// inside a transaction that holds the row lock for the whole
	// read-decide-write sequence. apply reports whether it changed the
	// record; an unchanged record is returned without writing. Any
	// error from apply rolls back and leaves the ledger untouched.
	Transition(ctx context.Context, orderID string, apply func(*Payment) (bool, error)) (*Payment, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const paymentColumns = `id, order_id, amount::text, currency, method, status, idempotency_key, created_at, updated_at`

func (r *PostgresRepository) FindByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	return scanPayment(row)
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
	return scanPayment(row)
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, p *Payment) (*Payment, bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, currency, method, status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO NOTHING
	`, p.ID, p.OrderID, p.Amount.StringFixed(2), p.Currency, p.Method, string(p.Status),
		nullableString(p.IdempotencyKey), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		// A duplicate idempotency key is not covered by the conflict
		// target above and surfaces as a unique violation.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && p.IdempotencyKey != "" {
			existing, ferr := r.FindByIdempotencyKey(ctx, p.IdempotencyKey)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert payment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := r.FindByOrderID(ctx, p.OrderID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("payment for order %s vanished after insert conflict", p.OrderID)
		}
		return existing, false, nil
	}

	return p, true, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, orderID string, apply func(*Payment) (bool, error)) (*Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 FOR UPDATE`, orderID)
	p, err := scanPayment(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if p == nil {
		_ = tx.Rollback(ctx)
		return nil, ErrNotFound
	}

	changed, err := apply(p)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if !changed {
		// Idempotent repeat: nothing to write.
		_ = tx.Rollback(ctx)
		return p, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE order_id = $1`,
		orderID, string(p.Status), p.UpdatedAt,
	); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p      Payment
		amount string
		status string
		key    *string
	)
	err := row.Scan(&p.ID, &p.OrderID, &amount, &p.Currency, &p.Method, &status, &key, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Amount, err = parseAmount(amount)
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if key != nil {
		p.IdempotencyKey = *key
	}
	return &p, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
