package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// seriesSlot сериализует аллокации одной серии, не блокируя остальные.
type seriesSlot struct {
	mu     sync.Mutex
	series domain.DocumentSeries
}

// seriesRepositoryInMemory хранит счётчики серий. Аллокации фиксируются сразу
// и не откатываются вместе с транзакцией вызывающего.
type seriesRepositoryInMemory struct {
	mu      sync.RWMutex
	slots   map[int64]*seriesSlot
	byKey   map[domain.SeriesKey]int64
	gaps    []domain.NumberGap
	nextID  int64
	nextGap int64
}

// NewSeriesRepository создаёт in-memory реализацию SeriesRepository.
func NewSeriesRepository() domain.SeriesRepository {
	return &seriesRepositoryInMemory{
		slots: make(map[int64]*seriesSlot),
		byKey: make(map[domain.SeriesKey]int64),
	}
}

func (r *seriesRepositoryInMemory) Create(_ context.Context, series *domain.DocumentSeries) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := series.Key()
	if _, exists := r.byKey[key]; exists {
		return domain.ConflictError(domain.ErrSeriesAlreadyExists, key, "")
	}

	r.nextID++
	now := time.Now().UTC()
	series.ID = r.nextID
	series.CreatedAt = now
	series.UpdatedAt = now

	r.slots[series.ID] = &seriesSlot{series: *series}
	r.byKey[key] = series.ID
	return nil
}

func (r *seriesRepositoryInMemory) Get(_ context.Context, id int64) (domain.DocumentSeries, error) {
	slot, err := r.slot(id)
	if err != nil {
		return domain.DocumentSeries{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.series, nil
}

func (r *seriesRepositoryInMemory) GetByKey(ctx context.Context, key domain.SeriesKey) (domain.DocumentSeries, error) {
	r.mu.RLock()
	id, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return domain.DocumentSeries{}, domain.NotFoundError(domain.ErrSeriesNotFound, key)
	}
	return r.Get(ctx, id)
}

func (r *seriesRepositoryInMemory) List(_ context.Context) ([]domain.DocumentSeries, error) {
	r.mu.RLock()
	slots := make([]*seriesSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		slots = append(slots, slot)
	}
	r.mu.RUnlock()

	result := make([]domain.DocumentSeries, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		result = append(result, slot.series)
		slot.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Allocate увеличивает счётчик под замком серии.
func (r *seriesRepositoryInMemory) Allocate(_ context.Context, key domain.SeriesKey) (int64, error) {
	r.mu.RLock()
	id, ok := r.byKey[key]
	slot := r.slots[id]
	r.mu.RUnlock()
	if !ok {
		return 0, domain.NotFoundError(domain.ErrSeriesNotFound, key)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if !slot.series.IsActive {
		return 0, domain.ConflictError(domain.ErrSeriesInactive, key, "")
	}
	if slot.series.CurrentNumber >= domain.MaxDocumentNumber {
		return 0, domain.ConflictError(domain.ErrSeriesExhausted, key, "")
	}
	slot.series.CurrentNumber++
	slot.series.UpdatedAt = time.Now().UTC()
	return slot.series.CurrentNumber, nil
}

func (r *seriesRepositoryInMemory) SetCurrentNumber(_ context.Context, id, number int64) (domain.DocumentSeries, error) {
	slot, err := r.slot(id)
	if err != nil {
		return domain.DocumentSeries{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if number < slot.series.CurrentNumber {
		return slot.series, domain.ConflictError(domain.ErrSeriesNumberRegression, id, "")
	}
	slot.series.CurrentNumber = number
	slot.series.UpdatedAt = time.Now().UTC()
	return slot.series, nil
}

func (r *seriesRepositoryInMemory) ToggleActive(_ context.Context, id int64) (domain.DocumentSeries, error) {
	slot, err := r.slot(id)
	if err != nil {
		return domain.DocumentSeries{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	slot.series.IsActive = !slot.series.IsActive
	slot.series.UpdatedAt = time.Now().UTC()
	return slot.series, nil
}

func (r *seriesRepositoryInMemory) RecordGap(_ context.Context, gap domain.NumberGap) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGap++
	gap.ID = r.nextGap
	if gap.OccurredAt.IsZero() {
		gap.OccurredAt = time.Now().UTC()
	}
	r.gaps = append(r.gaps, gap)
	return nil
}

func (r *seriesRepositoryInMemory) ListGaps(_ context.Context, seriesID int64) ([]domain.NumberGap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.NumberGap, 0)
	for _, gap := range r.gaps {
		if gap.SeriesID == seriesID {
			result = append(result, gap)
		}
	}
	return result, nil
}

func (r *seriesRepositoryInMemory) slot(id int64) (*seriesSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.slots[id]
	if !ok {
		return nil, domain.NotFoundError(domain.ErrSeriesNotFound, id)
	}
	return slot, nil
}

var _ domain.SeriesRepository = (*seriesRepositoryInMemory)(nil)
