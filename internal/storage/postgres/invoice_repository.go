package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type invoiceRepository struct {
	store *Store
}

// NewInvoiceRepository создаёт PostgreSQL-реализацию InvoiceRepository.
func NewInvoiceRepository(store *Store) domain.InvoiceRepository {
	return &invoiceRepository{store: store}
}

const invoiceColumns = `
	id, order_id, invoice_type, series_id, series_code, number,
	receiver_tax_id, receiver_name, currency, subtotal, tax_amount, total_amount,
	status, status_reason, issued_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (domain.Invoice, error) {
	var (
		inv         domain.Invoice
		invoiceType string
		status      string
	)
	err := row.Scan(
		&inv.ID, &inv.OrderID, &invoiceType, &inv.SeriesID, &inv.SeriesCode, &inv.Number,
		&inv.ReceiverTaxID, &inv.ReceiverName, &inv.Currency, &inv.Subtotal, &inv.TaxAmount, &inv.TotalAmount,
		&status, &inv.StatusReason, &inv.IssuedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.Type = domain.InvoiceType(invoiceType)
	inv.Status = domain.InvoiceStatus(status)
	return inv, nil
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO invoices (
			order_id, invoice_type, series_id, series_code, number,
			receiver_tax_id, receiver_name, currency, subtotal, tax_amount, total_amount,
			status, status_reason, issued_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`,
		invoice.OrderID, string(invoice.Type), invoice.SeriesID, invoice.SeriesCode, invoice.Number,
		invoice.ReceiverTaxID, invoice.ReceiverName, invoice.Currency,
		invoice.Subtotal, invoice.TaxAmount, invoice.TotalAmount,
		string(invoice.Status), invoice.StatusReason, invoice.IssuedAt, invoice.UpdatedAt,
	).Scan(&invoice.ID)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "invoices_active_order_key" {
				return domain.ConflictError(domain.ErrOrderAlreadyInvoiced, invoice.OrderID, "")
			}
			return domain.ConflictError(domain.ErrDuplicateDocumentNumber, invoice.SeriesCode+"-"+invoice.Number, "")
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id int64) (domain.Invoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	inv, err := scanInvoice(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, domain.NotFoundError(domain.ErrInvoiceNotFound, id)
		}
		return domain.Invoice{}, fmt.Errorf("select invoice: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepository) GetActiveByOrder(ctx context.Context, orderID int64) (domain.Invoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	inv, err := scanInvoice(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 AND status <> 'CANCELLED'`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, domain.NotFoundError(domain.ErrInvoiceNotFound, orderID)
		}
		return domain.Invoice{}, fmt.Errorf("select active invoice: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	from, to domain.InvoiceStatus,
	reason string,
	at time.Time,
) (domain.Invoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	inv, err := scanInvoice(r.store.conn(ctx).QueryRowContext(ctx, `
		UPDATE invoices
		SET status = $3,
		    status_reason = $4,
		    updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+invoiceColumns,
		id, string(from), string(to), reason, at))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Invoice{}, fmt.Errorf("update invoice status: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return domain.Invoice{}, getErr
	}
	return current, domain.ConflictError(domain.ErrInvoiceStatusConflict, id, "")
}

var _ domain.InvoiceRepository = (*invoiceRepository)(nil)
