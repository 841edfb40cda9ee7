package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type paymentRepository struct {
	store *Store
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{store: store}
}

const paymentColumns = `id, order_id, payment_method_id, amount, transaction_id, payment_date, created_at`

func scanPayment(row interface{ Scan(...any) error }) (domain.Payment, error) {
	var (
		p  domain.Payment
		tx sql.NullString
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.PaymentMethodID, &p.Amount, &tx, &p.PaymentDate, &p.CreatedAt); err != nil {
		return domain.Payment{}, err
	}
	p.TransactionID = tx.String
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	tx := sql.NullString{String: payment.TransactionID, Valid: payment.TransactionID != ""}

	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO payments (order_id, payment_method_id, amount, transaction_id, payment_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, payment.OrderID, payment.PaymentMethodID, payment.Amount, tx, payment.PaymentDate, payment.CreatedAt,
	).Scan(&payment.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError(domain.ErrDuplicatePaymentTransaction, payment.TransactionID, "")
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := scanPayment(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.NotFoundError(domain.ErrPaymentNotFound, transactionID)
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY payment_date, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return result, nil
}

func (r *paymentRepository) SumByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sum decimal.Decimal
	if err := r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1`, orderID,
	).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return sum, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
