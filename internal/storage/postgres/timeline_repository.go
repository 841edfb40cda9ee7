package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type timelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{store: store}
}

func (r *timelineRepository) Append(ctx context.Context, record domain.TransitionRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	if _, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO order_transitions (order_id, from_status, to_status, actor, notes, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, record.OrderID, string(record.From), string(record.To), record.Actor, record.Notes, record.OccurredAt); err != nil {
		return fmt.Errorf("append order transition: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID int64) ([]domain.TransitionRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, actor, notes, occurred_at
		FROM order_transitions
		WHERE order_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order transitions: %w", err)
	}
	defer rows.Close()

	records := make([]domain.TransitionRecord, 0)
	for rows.Next() {
		var (
			rec      domain.TransitionRecord
			from, to string
		)
		if err := rows.Scan(&rec.ID, &rec.OrderID, &from, &to, &rec.Actor, &rec.Notes, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan order transition: %w", err)
		}
		rec.From = domain.OrderStatus(from)
		rec.To = domain.OrderStatus(to)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order transitions: %w", err)
	}

	return records, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
