package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

const orderColumns = `
	id, order_number, customer_id, customer_name, status, currency,
	shipping_address, billing_address, shipping_cost, total, cancel_reason,
	version, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	var billing []byte
	if order.BillingAddress != nil {
		if billing, err = json.Marshal(order.BillingAddress); err != nil {
			return fmt.Errorf("marshal billing address: %w", err)
		}
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	order.Version = 1

	return NewTransactor(r.store).WithinTx(ctx, func(ctx context.Context) error {
		q := r.store.conn(ctx)

		err := q.QueryRowContext(ctx, `
			INSERT INTO orders (
				order_number, customer_id, customer_name, status, currency,
				shipping_address, billing_address, shipping_cost, total,
				cancel_reason, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			RETURNING id
		`,
			order.OrderNumber, order.CustomerID, order.CustomerName, string(order.Status), order.Currency,
			shipping, billing, order.ShippingCost, order.Total,
			order.CancelReason, order.Version, order.CreatedAt, order.UpdatedAt,
		).Scan(&order.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ConflictError(domain.ErrOrderNumberTaken, order.OrderNumber, "")
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			if err := q.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, variant_id, quantity, unit_price)
				VALUES ($1,$2,$3,$4)
				RETURNING id
			`, order.ID, item.VariantID, item.Quantity, item.UnitPrice).Scan(&item.ID); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *orderRepository) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.getBy(ctx, `order_number = $1`, orderNumber)
}

func (r *orderRepository) getBy(ctx context.Context, where string, arg any) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := r.store.conn(ctx)

	var (
		order    domain.Order
		status   string
		shipping []byte
		billing  []byte
	)
	err := q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.CustomerName, &status, &order.Currency,
		&shipping, &billing, &order.ShippingCost, &order.Total, &order.CancelReason,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NotFoundError(domain.ErrOrderNotFound, arg)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(billing) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(billing, &addr); err != nil {
			return domain.Order{}, fmt.Errorf("decode billing address: %w", err)
		}
		order.BillingAddress = &addr
	}

	items, err := r.loadItems(ctx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// Save обновляет изменяемые поля заказа при совпадении версии.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := r.store.conn(ctx)

	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    cancel_reason = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4 AND version = $5
	`, string(order.Status), order.CancelReason, order.UpdatedAt, order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	exists, err := r.exists(ctx, q, order.ID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NotFoundError(domain.ErrOrderNotFound, order.ID)
	}
	return domain.ConflictError(domain.ErrOrderVersionConflict, order.ID, "")
}

func (r *orderRepository) loadItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, variant_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) exists(ctx context.Context, q querier, orderID int64) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
