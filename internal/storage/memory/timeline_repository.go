package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// timelineRepositoryInMemory хранит журнал переходов в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[int64][]domain.TransitionRecord
	nextID  int64
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{records: make(map[int64][]domain.TransitionRecord)}
}

// Append добавляет запись в журнал заказа.
func (r *timelineRepositoryInMemory) Append(ctx context.Context, record domain.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	list := append(r.records[record.OrderID], record)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].OccurredAt.Before(list[j].OccurredAt)
	})
	r.records[record.OrderID] = list

	orderID, id := record.OrderID, record.ID
	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.records[orderID]
		for i := range list {
			if list[i].ID == id {
				r.records[orderID] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	})
	return nil
}

// List возвращает журнал заказа в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(_ context.Context, orderID int64) ([]domain.TransitionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.records[orderID]
	result := make([]domain.TransitionRecord, len(records))
	copy(result, records)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
