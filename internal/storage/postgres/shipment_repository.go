package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type shipmentRepository struct {
	store *Store
}

// NewShipmentRepository создаёт PostgreSQL-реализацию ShipmentRepository.
func NewShipmentRepository(store *Store) domain.ShipmentRepository {
	return &shipmentRepository{store: store}
}

const shipmentColumns = `
	id, order_id, shipment_type, tracking_number, status, shipping_method_id,
	weight_kg, shipping_cost, estimated_delivery_date, recipient_name, recipient_phone,
	package_quantity, require_signature, notes, shipped_at, created_at, updated_at`

func scanShipment(row interface{ Scan(...any) error }) (domain.Shipment, error) {
	var (
		s            domain.Shipment
		orderID      sql.NullInt64
		methodID     sql.NullInt64
		shipmentType string
		status       string
		estimated    sql.NullTime
		shippedAt    sql.NullTime
	)
	err := row.Scan(
		&s.ID, &orderID, &shipmentType, &s.TrackingNumber, &status, &methodID,
		&s.WeightKg, &s.ShippingCost, &estimated, &s.RecipientName, &s.RecipientPhone,
		&s.PackageQuantity, &s.RequireSignature, &s.Notes, &shippedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Shipment{}, err
	}
	s.Type = domain.ShipmentType(shipmentType)
	s.Status = domain.ShipmentStatus(status)
	if orderID.Valid {
		id := orderID.Int64
		s.OrderID = &id
	}
	if methodID.Valid {
		s.ShippingMethodID = methodID.Int64
	}
	if estimated.Valid {
		t := estimated.Time
		s.EstimatedDeliveryDate = &t
	}
	if shippedAt.Valid {
		t := shippedAt.Time
		s.ShippedAt = &t
	}
	return s, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

func (r *shipmentRepository) Create(ctx context.Context, shipment *domain.Shipment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}
	if shipment.UpdatedAt.IsZero() {
		shipment.UpdatedAt = shipment.CreatedAt
	}

	var orderID sql.NullInt64
	if shipment.OrderID != nil {
		orderID = sql.NullInt64{Int64: *shipment.OrderID, Valid: true}
	}

	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO shipments (
			order_id, shipment_type, tracking_number, status, shipping_method_id,
			weight_kg, shipping_cost, estimated_delivery_date, recipient_name, recipient_phone,
			package_quantity, require_signature, notes, shipped_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`,
		orderID, string(shipment.Type), shipment.TrackingNumber, string(shipment.Status), nullableID(shipment.ShippingMethodID),
		shipment.WeightKg, shipment.ShippingCost, shipment.EstimatedDeliveryDate, shipment.RecipientName, shipment.RecipientPhone,
		shipment.PackageQuantity, shipment.RequireSignature, shipment.Notes, shipment.ShippedAt, shipment.CreatedAt, shipment.UpdatedAt,
	).Scan(&shipment.ID)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "shipments_active_outbound_key" {
				return domain.ConflictError(domain.ErrActiveShipmentExists, orderID.Int64, "")
			}
			return domain.ConflictError(domain.ErrDuplicateTrackingNumber, shipment.TrackingNumber, "")
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (r *shipmentRepository) Get(ctx context.Context, id int64) (domain.Shipment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s, err := scanShipment(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shipment{}, domain.NotFoundError(domain.ErrShipmentNotFound, id)
		}
		return domain.Shipment{}, fmt.Errorf("select shipment: %w", err)
	}
	return s, nil
}

func (r *shipmentRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.Shipment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Shipment, 0)
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipments: %w", err)
	}
	return result, nil
}

func (r *shipmentRepository) CountActiveOutbound(ctx context.Context, orderID int64) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.store.conn(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM shipments
		WHERE order_id = $1 AND shipment_type = 'OUTBOUND' AND status <> 'CANCELLED'
	`, orderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active shipments: %w", err)
	}
	return count, nil
}

func (r *shipmentRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	from, to domain.ShipmentStatus,
	at time.Time,
) (domain.Shipment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s, err := scanShipment(r.store.conn(ctx).QueryRowContext(ctx, `
		UPDATE shipments
		SET status = $3,
		    shipped_at = CASE WHEN $3 = 'IN_TRANSIT' AND shipped_at IS NULL THEN $4 ELSE shipped_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+shipmentColumns,
		id, string(from), string(to), at))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Shipment{}, fmt.Errorf("update shipment status: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return domain.Shipment{}, getErr
	}
	return current, domain.ConflictError(domain.ErrShipmentStatusConflict, id, "")
}

func (r *shipmentRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx,
		`DELETE FROM shipments WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("delete shipment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ConflictError(domain.ErrShipmentNotPending, id, "")
}

// AppendEvent берёт блокировку строки отгрузки, чтобы проверка даты и вставка
// не гонялись с параллельным событием.
func (r *shipmentRepository) AppendEvent(ctx context.Context, event *domain.TrackingEvent) error {
	return NewTransactor(r.store).WithinTx(ctx, func(ctx context.Context) error {
		q := r.store.conn(ctx)

		var locked int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM shipments WHERE id = $1 FOR UPDATE`, event.ShipmentID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundError(domain.ErrShipmentNotFound, event.ShipmentID)
			}
			return fmt.Errorf("lock shipment: %w", err)
		}

		var latest sql.NullTime
		if err := q.QueryRowContext(ctx,
			`SELECT MAX(event_date) FROM tracking_events WHERE shipment_id = $1`, event.ShipmentID,
		).Scan(&latest); err != nil {
			return fmt.Errorf("select latest tracking event: %w", err)
		}
		if latest.Valid && event.EventDate.Before(latest.Time) {
			return domain.ConflictError(domain.ErrOutOfOrderEvent, event.ShipmentID, "")
		}

		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now().UTC()
		}
		if err := q.QueryRowContext(ctx, `
			INSERT INTO tracking_events (shipment_id, status, description, location, event_date, is_public, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`,
			event.ShipmentID, string(event.Status), event.Description, event.Location,
			event.EventDate, event.IsPublic, event.CreatedAt,
		).Scan(&event.ID); err != nil {
			return fmt.Errorf("insert tracking event: %w", err)
		}
		return nil
	})
}

func (r *shipmentRepository) ListEvents(ctx context.Context, shipmentID int64, publicOnly bool) ([]domain.TrackingEvent, error) {
	if _, err := r.Get(ctx, shipmentID); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, shipment_id, status, description, location, event_date, is_public, created_at
		FROM tracking_events
		WHERE shipment_id = $1 AND ($2 = FALSE OR is_public)
		ORDER BY event_date, id
	`, shipmentID, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("list tracking events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TrackingEvent, 0)
	for rows.Next() {
		var (
			e      domain.TrackingEvent
			status string
		)
		if err := rows.Scan(&e.ID, &e.ShipmentID, &status, &e.Description, &e.Location, &e.EventDate, &e.IsPublic, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tracking event: %w", err)
		}
		e.Status = domain.ShipmentStatus(status)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking events: %w", err)
	}
	return result, nil
}

var _ domain.ShipmentRepository = (*shipmentRepository)(nil)
