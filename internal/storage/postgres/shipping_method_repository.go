package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type shippingMethodRepository struct {
	store *Store
}

// NewShippingMethodRepository создаёт PostgreSQL-реализацию справочника способов доставки.
func NewShippingMethodRepository(store *Store) domain.ShippingMethodRepository {
	return &shippingMethodRepository{store: store}
}

const shippingMethodColumns = `id, name, base_cost, cost_per_kg, estimated_days_min, estimated_days_max, is_active`

func scanShippingMethod(row interface{ Scan(...any) error }) (domain.ShippingMethod, error) {
	var m domain.ShippingMethod
	err := row.Scan(&m.ID, &m.Name, &m.BaseCost, &m.CostPerKg, &m.EstimatedDaysMin, &m.EstimatedDaysMax, &m.IsActive)
	return m, err
}

func (r *shippingMethodRepository) Get(ctx context.Context, id int64) (domain.ShippingMethod, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	m, err := scanShippingMethod(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+shippingMethodColumns+` FROM shipping_methods WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ShippingMethod{}, domain.NotFoundError(domain.ErrShippingMethodNotFound, id)
		}
		return domain.ShippingMethod{}, fmt.Errorf("select shipping method: %w", err)
	}
	return m, nil
}

func (r *shippingMethodRepository) List(ctx context.Context) ([]domain.ShippingMethod, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx,
		`SELECT `+shippingMethodColumns+` FROM shipping_methods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list shipping methods: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ShippingMethod, 0)
	for rows.Next() {
		m, err := scanShippingMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipping method: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipping methods: %w", err)
	}
	return result, nil
}

var _ domain.ShippingMethodRepository = (*shippingMethodRepository)(nil)
