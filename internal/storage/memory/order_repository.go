package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// orderRepositoryInMemory - простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[int64]domain.Order
	byNumber map[string]int64
	nextID   int64
	nextItem int64
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[int64]domain.Order),
		byNumber: make(map[string]int64),
	}
}

// Create сохраняет новый заказ, если номер ещё не занят.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNumber[order.OrderNumber]; exists {
		return domain.ConflictError(domain.ErrOrderNumberTaken, order.OrderNumber, "")
	}

	r.nextID++
	order.ID = r.nextID
	order.Version = 1
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		r.nextItem++
		order.Items[i].ID = r.nextItem
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(*order)
	r.byNumber[order.OrderNumber] = order.ID

	id, number := order.ID, order.OrderNumber
	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, id)
		delete(r.byNumber, number)
	})
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.NotFoundError(domain.ErrOrderNotFound, id)
	}
	return cloneOrder(order), nil
}

// GetByNumber ищет заказ по человекочитаемому номеру.
func (r *orderRepositoryInMemory) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byNumber[orderNumber]
	r.mu.RUnlock()
	if !ok {
		return domain.Order{}, domain.NotFoundError(domain.ErrOrderNotFound, orderNumber)
	}
	return r.Get(ctx, id)
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.NotFoundError(domain.ErrOrderNotFound, order.ID)
	}
	if current.Version != order.Version {
		return domain.ConflictError(domain.ErrOrderVersionConflict, order.ID, "")
	}
	// Позиции заказа неизменяемы после оформления.
	order.Items = current.Items
	order.Version++
	r.items[order.ID] = cloneOrder(order)

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[current.ID] = current
	})
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	if src.BillingAddress != nil {
		addr := *src.BillingAddress
		dst.BillingAddress = &addr
	}
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
