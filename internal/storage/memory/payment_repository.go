package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type paymentRepositoryInMemory struct {
	mu            sync.RWMutex
	byOrder       map[int64][]domain.Payment
	byTransaction map[string]domain.Payment
	nextID        int64
}

// NewPaymentRepository создаёт in-memory реализацию PaymentRepository.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		byOrder:       make(map[int64][]domain.Payment),
		byTransaction: make(map[string]domain.Payment),
	}
}

func (r *paymentRepositoryInMemory) Create(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment.TransactionID != "" {
		if _, exists := r.byTransaction[payment.TransactionID]; exists {
			return domain.ConflictError(domain.ErrDuplicatePaymentTransaction, payment.TransactionID, "")
		}
	}

	r.nextID++
	payment.ID = r.nextID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	r.byOrder[payment.OrderID] = append(r.byOrder[payment.OrderID], *payment)
	if payment.TransactionID != "" {
		r.byTransaction[payment.TransactionID] = *payment
	}

	saved := *payment
	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.byOrder[saved.OrderID]
		for i := range list {
			if list[i].ID == saved.ID {
				r.byOrder[saved.OrderID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if saved.TransactionID != "" {
			delete(r.byTransaction, saved.TransactionID)
		}
	})
	return nil
}

func (r *paymentRepositoryInMemory) GetByTransactionID(_ context.Context, transactionID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.byTransaction[transactionID]
	if !ok {
		return domain.Payment{}, domain.NotFoundError(domain.ErrPaymentNotFound, transactionID)
	}
	return payment, nil
}

func (r *paymentRepositoryInMemory) ListByOrder(_ context.Context, orderID int64) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byOrder[orderID]
	result := make([]domain.Payment, len(list))
	copy(result, list)
	return result, nil
}

func (r *paymentRepositoryInMemory) SumByOrder(_ context.Context, orderID int64) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	for _, p := range r.byOrder[orderID] {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
