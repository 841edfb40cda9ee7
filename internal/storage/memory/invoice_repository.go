package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type invoiceRepositoryInMemory struct {
	mu            sync.RWMutex
	items         map[int64]domain.Invoice
	activeByOrder map[int64]int64
	numbers       map[string]int64
	nextID        int64
}

// NewInvoiceRepository создаёт in-memory реализацию InvoiceRepository.
func NewInvoiceRepository() domain.InvoiceRepository {
	return &invoiceRepositoryInMemory{
		items:         make(map[int64]domain.Invoice),
		activeByOrder: make(map[int64]int64),
		numbers:       make(map[string]int64),
	}
}

func numberKey(seriesID int64, number string) string {
	return fmt.Sprintf("%d/%s", seriesID, number)
}

// Create повторяет уникальные индексы postgres: один активный документ на заказ
// и уникальная пара серия+номер.
func (r *invoiceRepositoryInMemory) Create(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activeByOrder[invoice.OrderID]; exists && invoice.Status.IsActive() {
		return domain.ConflictError(domain.ErrOrderAlreadyInvoiced, invoice.OrderID, "")
	}
	nk := numberKey(invoice.SeriesID, invoice.Number)
	if _, exists := r.numbers[nk]; exists {
		return domain.ConflictError(domain.ErrDuplicateDocumentNumber, invoice.SeriesCode+"-"+invoice.Number, "")
	}

	r.nextID++
	invoice.ID = r.nextID
	r.items[invoice.ID] = *invoice
	r.numbers[nk] = invoice.ID
	if invoice.Status.IsActive() {
		r.activeByOrder[invoice.OrderID] = invoice.ID
	}

	saved := *invoice
	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, saved.ID)
		delete(r.numbers, nk)
		if r.activeByOrder[saved.OrderID] == saved.ID {
			delete(r.activeByOrder, saved.OrderID)
		}
	})
	return nil
}

func (r *invoiceRepositoryInMemory) Get(_ context.Context, id int64) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, ok := r.items[id]
	if !ok {
		return domain.Invoice{}, domain.NotFoundError(domain.ErrInvoiceNotFound, id)
	}
	return invoice, nil
}

func (r *invoiceRepositoryInMemory) GetActiveByOrder(_ context.Context, orderID int64) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.activeByOrder[orderID]
	if !ok {
		return domain.Invoice{}, domain.NotFoundError(domain.ErrInvoiceNotFound, orderID)
	}
	return r.items[id], nil
}

// UpdateStatus выполняет compare-and-set по текущему статусу.
func (r *invoiceRepositoryInMemory) UpdateStatus(
	ctx context.Context,
	id int64,
	from, to domain.InvoiceStatus,
	reason string,
	at time.Time,
) (domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Invoice{}, domain.NotFoundError(domain.ErrInvoiceNotFound, id)
	}
	if current.Status != from {
		return current, domain.ConflictError(domain.ErrInvoiceStatusConflict, id, "")
	}

	updated := current
	updated.Status = to
	updated.StatusReason = reason
	updated.UpdatedAt = at
	r.items[id] = updated
	if !to.IsActive() && r.activeByOrder[current.OrderID] == id {
		delete(r.activeByOrder, current.OrderID)
	}

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[id] = current
		if current.Status.IsActive() {
			r.activeByOrder[current.OrderID] = id
		}
	})
	return updated, nil
}

var _ domain.InvoiceRepository = (*invoiceRepositoryInMemory)(nil)
