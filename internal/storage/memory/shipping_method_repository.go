package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// DefaultShippingMethods повторяет справочник, который postgres-миграция заливает при старте.
func DefaultShippingMethods() []domain.ShippingMethod {
	return []domain.ShippingMethod{
		{
			ID:               1,
			Name:             "Standard",
			BaseCost:         decimal.RequireFromString("10.00"),
			CostPerKg:        decimal.RequireFromString("2.50"),
			EstimatedDaysMin: 3,
			EstimatedDaysMax: 5,
			IsActive:         true,
		},
		{
			ID:               2,
			Name:             "Express",
			BaseCost:         decimal.RequireFromString("25.00"),
			CostPerKg:        decimal.RequireFromString("4.00"),
			EstimatedDaysMin: 1,
			EstimatedDaysMax: 2,
			IsActive:         true,
		},
	}
}

type shippingMethodRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[int64]domain.ShippingMethod
}

// NewShippingMethodRepository создаёт справочник; без аргументов используется DefaultShippingMethods.
func NewShippingMethodRepository(methods ...domain.ShippingMethod) domain.ShippingMethodRepository {
	if len(methods) == 0 {
		methods = DefaultShippingMethods()
	}
	items := make(map[int64]domain.ShippingMethod, len(methods))
	for _, m := range methods {
		items[m.ID] = m
	}
	return &shippingMethodRepositoryInMemory{items: items}
}

func (r *shippingMethodRepositoryInMemory) Get(_ context.Context, id int64) (domain.ShippingMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.items[id]
	if !ok {
		return domain.ShippingMethod{}, domain.NotFoundError(domain.ErrShippingMethodNotFound, id)
	}
	return m, nil
}

func (r *shippingMethodRepositoryInMemory) List(_ context.Context) ([]domain.ShippingMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ShippingMethod, 0, len(r.items))
	for _, m := range r.items {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.ShippingMethodRepository = (*shippingMethodRepositoryInMemory)(nil)
