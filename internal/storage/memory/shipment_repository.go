package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type shipmentRepositoryInMemory struct {
	mu          sync.RWMutex
	items       map[int64]domain.Shipment
	byTracking  map[string]int64
	events      map[int64][]domain.TrackingEvent
	nextID      int64
	nextEventID int64
}

// NewShipmentRepository создаёт in-memory реализацию ShipmentRepository.
func NewShipmentRepository() domain.ShipmentRepository {
	return &shipmentRepositoryInMemory{
		items:      make(map[int64]domain.Shipment),
		byTracking: make(map[string]int64),
		events:     make(map[int64][]domain.TrackingEvent),
	}
}

func (r *shipmentRepositoryInMemory) Create(ctx context.Context, shipment *domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTracking[shipment.TrackingNumber]; exists {
		return domain.ConflictError(domain.ErrDuplicateTrackingNumber, shipment.TrackingNumber, "")
	}
	if shipment.Type == domain.ShipmentTypeOutbound && shipment.OrderID != nil &&
		r.countActiveOutboundLocked(*shipment.OrderID) > 0 {
		return domain.ConflictError(domain.ErrActiveShipmentExists, *shipment.OrderID, "")
	}

	r.nextID++
	shipment.ID = r.nextID
	r.items[shipment.ID] = cloneShipment(*shipment)
	r.byTracking[shipment.TrackingNumber] = shipment.ID

	id, tracking := shipment.ID, shipment.TrackingNumber
	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, id)
		delete(r.byTracking, tracking)
	})
	return nil
}

func (r *shipmentRepositoryInMemory) Get(_ context.Context, id int64) (domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shipment, ok := r.items[id]
	if !ok {
		return domain.Shipment{}, domain.NotFoundError(domain.ErrShipmentNotFound, id)
	}
	return cloneShipment(shipment), nil
}

func (r *shipmentRepositoryInMemory) ListByOrder(_ context.Context, orderID int64) ([]domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Shipment, 0)
	for _, s := range r.items {
		if s.OrderID != nil && *s.OrderID == orderID {
			result = append(result, cloneShipment(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *shipmentRepositoryInMemory) CountActiveOutbound(_ context.Context, orderID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countActiveOutboundLocked(orderID), nil
}

func (r *shipmentRepositoryInMemory) countActiveOutboundLocked(orderID int64) int {
	count := 0
	for _, s := range r.items {
		if s.IsActiveOutboundFor(orderID) {
			count++
		}
	}
	return count
}

// UpdateStatus выполняет compare-and-set по текущему статусу.
func (r *shipmentRepositoryInMemory) UpdateStatus(
	ctx context.Context,
	id int64,
	from, to domain.ShipmentStatus,
	at time.Time,
) (domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Shipment{}, domain.NotFoundError(domain.ErrShipmentNotFound, id)
	}
	if current.Status != from {
		return cloneShipment(current), domain.ConflictError(domain.ErrShipmentStatusConflict, id, "")
	}

	updated := cloneShipment(current)
	updated.Status = to
	updated.UpdatedAt = at
	if to == domain.ShipmentStatusInTransit && updated.ShippedAt == nil {
		shippedAt := at
		updated.ShippedAt = &shippedAt
	}
	r.items[id] = updated

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[id] = current
	})
	return cloneShipment(updated), nil
}

// Delete удаляет отгрузку вместе с её журналом; допустимо только для PENDING.
func (r *shipmentRepositoryInMemory) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.NotFoundError(domain.ErrShipmentNotFound, id)
	}
	if current.Status != domain.ShipmentStatusPending {
		return domain.ConflictError(domain.ErrShipmentNotPending, id, "")
	}

	events := r.events[id]
	delete(r.items, id)
	delete(r.byTracking, current.TrackingNumber)
	delete(r.events, id)

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[id] = current
		r.byTracking[current.TrackingNumber] = id
		if events != nil {
			r.events[id] = events
		}
	})
	return nil
}

// AppendEvent отклоняет событие, датированное раньше последнего записанного.
func (r *shipmentRepositoryInMemory) AppendEvent(ctx context.Context, event *domain.TrackingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[event.ShipmentID]; !ok {
		return domain.NotFoundError(domain.ErrShipmentNotFound, event.ShipmentID)
	}
	existing := r.events[event.ShipmentID]
	if n := len(existing); n > 0 && event.EventDate.Before(existing[n-1].EventDate) {
		return domain.ConflictError(domain.ErrOutOfOrderEvent, event.ShipmentID, "")
	}

	r.nextEventID++
	event.ID = r.nextEventID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events[event.ShipmentID] = append(existing, *event)

	shipmentID, eventID := event.ShipmentID, event.ID
	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.events[shipmentID]
		for i := range list {
			if list[i].ID == eventID {
				r.events[shipmentID] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *shipmentRepositoryInMemory) ListEvents(_ context.Context, shipmentID int64, publicOnly bool) ([]domain.TrackingEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.items[shipmentID]; !ok {
		return nil, domain.NotFoundError(domain.ErrShipmentNotFound, shipmentID)
	}

	result := make([]domain.TrackingEvent, 0, len(r.events[shipmentID]))
	for _, e := range r.events[shipmentID] {
		if publicOnly && !e.IsPublic {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func cloneShipment(src domain.Shipment) domain.Shipment {
	dst := src
	if src.OrderID != nil {
		id := *src.OrderID
		dst.OrderID = &id
	}
	if src.EstimatedDeliveryDate != nil {
		d := *src.EstimatedDeliveryDate
		dst.EstimatedDeliveryDate = &d
	}
	if src.ShippedAt != nil {
		d := *src.ShippedAt
		dst.ShippedAt = &d
	}
	return dst
}

var _ domain.ShipmentRepository = (*shipmentRepositoryInMemory)(nil)
