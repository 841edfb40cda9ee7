package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
)

// Emitter кладёт доменные события в outbox в транзакции вызывающего.
type Emitter struct {
	repo    domain.OutboxRepository
	metrics *metrics.BillingMetrics
}

// NewEmitter создаёт Emitter. nil repo отключает запись событий.
func NewEmitter(repo domain.OutboxRepository, m *metrics.BillingMetrics) *Emitter {
	return &Emitter{repo: repo, metrics: m}
}

// Emit сериализует payload и ставит сообщение в очередь.
// Ошибка возвращается вызывающему, чтобы событие и изменение состояния откатились вместе.
func (e *Emitter) Emit(ctx context.Context, aggregateType string, aggregateID int64, eventType kafka.EventType, payload any) error {
	if e == nil || e.repo == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if _, err := e.repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprint(aggregateID),
		EventType:     string(eventType),
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}

	e.metrics.RecordOutboxEvent()
	return nil
}
