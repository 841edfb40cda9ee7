package shipment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/billing/internal/service/outbox"
)

// OrderUnits - операции жизненного цикла, внутри которых меняются отгрузки заказа.
type OrderUnits interface {
	Touch(ctx context.Context, orderID int64, fn lifecycle.UnitFunc) (domain.Order, error)
	TransitionWith(ctx context.Context, req lifecycle.TransitionRequest, fn lifecycle.UnitFunc) (domain.Order, error)
	ReleaseShipment(ctx context.Context, orderID int64, actor string, fn lifecycle.UnitFunc) (domain.Order, error)
}

// Dependencies - хранилища и коллабораторы координатора отгрузок.
type Dependencies struct {
	Tx        domain.Transactor
	Orders    domain.OrderRepository
	Shipments domain.ShipmentRepository
	Methods   domain.ShippingMethodRepository
	Units     OrderUnits
	Outbox    domain.OutboxRepository
}

// Coordinator ведёт отгрузки и журнал трекинга. Статус заказа меняет только через OrderUnits.
type Coordinator struct {
	tx        domain.Transactor
	orders    domain.OrderRepository
	shipments domain.ShipmentRepository
	methods   domain.ShippingMethodRepository
	units     OrderUnits
	events    *outbox.Emitter
	logger    *log.Entry
	metrics   *metrics.BillingMetrics
	now       func() time.Time
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator создаёт Coordinator.
func NewCoordinator(deps Dependencies, options ...Option) *Coordinator {
	c := &Coordinator{
		tx:        deps.Tx,
		orders:    deps.Orders,
		shipments: deps.Shipments,
		methods:   deps.Methods,
		units:     deps.Units,
		logger:    log.WithField("component", "shipment-coordinator"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(c)
	}
	c.events = outbox.NewEmitter(deps.Outbox, c.metrics)
	return c
}

// CreateRequest - новая отгрузка. Стоимость и дата доставки по умолчанию берутся из способа доставки.
type CreateRequest struct {
	OrderID               *int64
	ShipmentType          domain.ShipmentType
	ShippingMethodID      int64
	TrackingNumber        string
	WeightKg              decimal.Decimal
	ShippingCost          *decimal.Decimal
	EstimatedDeliveryDate *time.Time
	RecipientName         string
	RecipientPhone        string
	PackageQuantity       int32
	RequireSignature      bool
	Notes                 string
	Actor                 string
}

// TrackingEventRequest - событие перевозчика.
type TrackingEventRequest struct {
	ShipmentID  int64
	Status      domain.ShipmentStatus
	Description string
	Location    string
	EventDate   time.Time
	IsPublic    bool
	Actor       string
}

// CreateForOrder создаёт отгрузку в PENDING. Исходящая отгрузка создаётся в единице
// сериализации заказа: проверка «нет активной» и вставка не разъезжаются.
func (c *Coordinator) CreateForOrder(ctx context.Context, req CreateRequest) (domain.Shipment, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveOperation("shipment.create", time.Since(start)) }()

	now := c.now()
	shipment := domain.Shipment{
		Type:             req.ShipmentType,
		TrackingNumber:   strings.TrimSpace(req.TrackingNumber),
		Status:           domain.ShipmentStatusPending,
		ShippingMethodID: req.ShippingMethodID,
		WeightKg:         req.WeightKg,
		RecipientName:    req.RecipientName,
		RecipientPhone:   req.RecipientPhone,
		PackageQuantity:  req.PackageQuantity,
		RequireSignature: req.RequireSignature,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.OrderID != nil {
		id := *req.OrderID
		shipment.OrderID = &id
	}
	if req.ShippingCost != nil {
		shipment.ShippingCost = domain.RoundMoney(*req.ShippingCost)
	}
	if err := domain.ValidationErrors(shipment.Validate()); err != nil {
		return domain.Shipment{}, err
	}

	method, err := c.methods.Get(ctx, req.ShippingMethodID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if req.ShippingCost == nil {
		shipment.ShippingCost = method.QuoteCost(shipment.WeightKg)
	}
	if req.EstimatedDeliveryDate != nil {
		estimated := req.EstimatedDeliveryDate.UTC()
		shipment.EstimatedDeliveryDate = &estimated
	} else {
		estimated := method.EstimateDelivery(now)
		shipment.EstimatedDeliveryDate = &estimated
	}

	persist := func(ctx context.Context) error {
		if err := c.shipments.Create(ctx, &shipment); err != nil {
			return err
		}
		return c.emit(ctx, kafka.EventTypeShipmentCreated, shipment, req.Actor, "", "")
	}

	if shipment.Type == domain.ShipmentTypeOutbound {
		_, err = c.units.Touch(ctx, *shipment.OrderID, func(ctx context.Context, order domain.Order) error {
			if !order.Status.AllowsOutboundShipment() {
				return domain.ConflictError(domain.ErrOrderNotEligibleForShipment, order.ID,
					fmt.Sprintf("order is %s", order.Status))
			}
			active, err := c.shipments.CountActiveOutbound(ctx, order.ID)
			if err != nil {
				return err
			}
			if active > 0 {
				return domain.ConflictError(domain.ErrActiveShipmentExists, order.ID, "")
			}
			return persist(ctx)
		})
	} else {
		err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
			if shipment.OrderID != nil {
				if _, err := c.orders.Get(ctx, *shipment.OrderID); err != nil {
					return err
				}
			}
			return persist(ctx)
		})
	}
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"order_id":        orderIDField(shipment),
			"tracking_number": shipment.TrackingNumber,
		}).Warn("shipment create rejected")
		return domain.Shipment{}, err
	}

	c.metrics.RecordShipment("created")
	c.logger.WithFields(log.Fields{
		"shipment_id":     shipment.ID,
		"order_id":        orderIDField(shipment),
		"shipment_type":   shipment.Type,
		"tracking_number": shipment.TrackingNumber,
		"shipping_cost":   shipment.ShippingCost.StringFixed(2),
	}).Info("shipment created")
	return shipment, nil
}

// MarkShipped переводит отгрузку PENDING -> IN_TRANSIT. Статус заказа не меняется.
func (c *Coordinator) MarkShipped(ctx context.Context, shipmentID int64, actor string) (domain.Shipment, error) {
	var updated domain.Shipment
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = c.markShipped(ctx, shipmentID, actor)
		return err
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	c.shipped(updated)
	return updated, nil
}

// MarkShippedAndTransition отмечает отгрузку отправленной и переводит заказ
// PROCESSING -> SHIPPED в одной транзакции.
func (c *Coordinator) MarkShippedAndTransition(ctx context.Context, shipmentID int64, actor, notes string) (domain.Shipment, domain.Order, error) {
	current, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, domain.Order{}, err
	}
	if current.Type != domain.ShipmentTypeOutbound || current.OrderID == nil {
		return domain.Shipment{}, domain.Order{}, domain.ValidationError(domain.ErrOrderIDRequired, "order_id")
	}

	var updated domain.Shipment
	order, err := c.units.TransitionWith(ctx, lifecycle.TransitionRequest{
		OrderID: *current.OrderID,
		Target:  domain.OrderStatusShipped,
		Actor:   actor,
		Notes:   notes,
	}, func(ctx context.Context, _ domain.Order) error {
		var err error
		updated, err = c.markShipped(ctx, shipmentID, actor)
		return err
	})
	if err != nil {
		return domain.Shipment{}, domain.Order{}, err
	}
	c.shipped(updated)
	return updated, order, nil
}

func (c *Coordinator) markShipped(ctx context.Context, shipmentID int64, actor string) (domain.Shipment, error) {
	current, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if current.Status != domain.ShipmentStatusPending {
		return domain.Shipment{}, domain.ConflictError(domain.ErrShipmentNotPending, shipmentID,
			fmt.Sprintf("shipment is %s", current.Status))
	}
	updated, err := c.shipments.UpdateStatus(ctx, shipmentID, current.Status, domain.ShipmentStatusInTransit, c.now())
	if err != nil {
		return domain.Shipment{}, err
	}
	if err := c.emit(ctx, kafka.EventTypeShipmentStatusChanged, updated, actor, "", ""); err != nil {
		return domain.Shipment{}, err
	}
	return updated, nil
}

func (c *Coordinator) shipped(shipment domain.Shipment) {
	c.metrics.RecordShipment("shipped")
	c.logger.WithFields(log.Fields{
		"shipment_id": shipment.ID,
		"order_id":    orderIDField(shipment),
	}).Info("shipment marked shipped")
}

// RecordTrackingEvent дописывает событие в журнал. Событие с допустимым следующим статусом
// продвигает отгрузку, событие с текущим статусом носит информационный характер.
func (c *Coordinator) RecordTrackingEvent(ctx context.Context, req TrackingEventRequest) (domain.TrackingEvent, error) {
	if req.EventDate.IsZero() {
		return domain.TrackingEvent{}, domain.ValidationError(domain.ErrEventDateRequired, "event_date")
	}
	if !req.Status.Valid() {
		return domain.TrackingEvent{}, domain.ValidationError(domain.ErrStatusUnknown, "status")
	}

	current, err := c.shipments.Get(ctx, req.ShipmentID)
	if err != nil {
		return domain.TrackingEvent{}, err
	}

	event := domain.TrackingEvent{
		ShipmentID:  req.ShipmentID,
		Status:      req.Status,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		EventDate:   req.EventDate.UTC(),
		IsPublic:    req.IsPublic,
		CreatedAt:   c.now(),
	}
	appendEvent := func(ctx context.Context) error {
		fresh, err := c.shipments.Get(ctx, req.ShipmentID)
		if err != nil {
			return err
		}
		if req.Status != fresh.Status && !fresh.Status.CanTransitionTo(req.Status) {
			return domain.ConflictError(domain.ErrInvalidShipmentTransition, fresh.ID,
				fmt.Sprintf("cannot move shipment from %s to %s", fresh.Status, req.Status))
		}
		if err := c.shipments.AppendEvent(ctx, &event); err != nil {
			return err
		}
		if req.Status != fresh.Status {
			if fresh, err = c.shipments.UpdateStatus(ctx, fresh.ID, fresh.Status, req.Status, c.now()); err != nil {
				return err
			}
		}
		return c.emit(ctx, kafka.EventTypeShipmentTrackingEvent, fresh, req.Actor, event.Description, event.Location)
	}

	if req.Status == domain.ShipmentStatusCancelled {
		err = c.runReleasing(ctx, current, req.Actor, appendEvent)
	} else {
		err = c.tx.WithinTx(ctx, appendEvent)
	}
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"shipment_id": req.ShipmentID,
			"status":      req.Status,
			"event_date":  event.EventDate,
		}).Warn("tracking event rejected")
		return domain.TrackingEvent{}, err
	}

	c.metrics.RecordTrackingEvent()
	c.logger.WithFields(log.Fields{
		"shipment_id": req.ShipmentID,
		"status":      req.Status,
		"location":    event.Location,
	}).Info("tracking event recorded")
	return event, nil
}

// Delete удаляет отгрузку в PENDING. Снятие единственной исходящей отгрузки
// заказа в PROCESSING возвращает заказ в PAID.
func (c *Coordinator) Delete(ctx context.Context, shipmentID int64, actor string) error {
	current, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	if current.Status != domain.ShipmentStatusPending {
		return domain.ConflictError(domain.ErrShipmentNotPending, shipmentID,
			fmt.Sprintf("shipment is %s", current.Status))
	}

	err = c.runReleasing(ctx, current, actor, func(ctx context.Context) error {
		if err := c.shipments.Delete(ctx, shipmentID); err != nil {
			return err
		}
		return c.emit(ctx, kafka.EventTypeShipmentDeleted, current, actor, "", "")
	})
	if err != nil {
		return err
	}

	c.metrics.RecordShipment("deleted")
	c.logger.WithFields(log.Fields{
		"shipment_id": shipmentID,
		"order_id":    orderIDField(current),
		"actor":       actor,
	}).Info("shipment deleted")
	return nil
}

// Cancel отменяет отгрузку в PENDING или IN_TRANSIT с той же семантикой освобождения заказа, что и Delete.
func (c *Coordinator) Cancel(ctx context.Context, shipmentID int64, actor, reason string) (domain.Shipment, error) {
	current, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if !current.Status.CanTransitionTo(domain.ShipmentStatusCancelled) {
		return domain.Shipment{}, domain.ConflictError(domain.ErrInvalidShipmentTransition, shipmentID,
			fmt.Sprintf("cannot cancel shipment in %s", current.Status))
	}

	var updated domain.Shipment
	err = c.runReleasing(ctx, current, actor, func(ctx context.Context) error {
		fresh, err := c.shipments.Get(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !fresh.Status.CanTransitionTo(domain.ShipmentStatusCancelled) {
			return domain.ConflictError(domain.ErrInvalidShipmentTransition, shipmentID,
				fmt.Sprintf("cannot cancel shipment in %s", fresh.Status))
		}
		updated, err = c.shipments.UpdateStatus(ctx, shipmentID, fresh.Status, domain.ShipmentStatusCancelled, c.now())
		if err != nil {
			return err
		}
		return c.emit(ctx, kafka.EventTypeShipmentStatusChanged, updated, actor, strings.TrimSpace(reason), "")
	})
	if err != nil {
		return domain.Shipment{}, err
	}

	c.metrics.RecordShipment("cancelled")
	c.logger.WithFields(log.Fields{
		"shipment_id": shipmentID,
		"order_id":    orderIDField(updated),
		"reason":      reason,
	}).Info("shipment cancelled")
	return updated, nil
}

// runReleasing выполняет fn; для исходящей отгрузки заказа - внутри ReleaseShipment.
func (c *Coordinator) runReleasing(ctx context.Context, shipment domain.Shipment, actor string, fn func(ctx context.Context) error) error {
	if shipment.Type == domain.ShipmentTypeOutbound && shipment.OrderID != nil {
		_, err := c.units.ReleaseShipment(ctx, *shipment.OrderID, actor, func(ctx context.Context, _ domain.Order) error {
			return fn(ctx)
		})
		return err
	}
	return c.tx.WithinTx(ctx, fn)
}

// Get возвращает отгрузку.
func (c *Coordinator) Get(ctx context.Context, shipmentID int64) (domain.Shipment, error) {
	return c.shipments.Get(ctx, shipmentID)
}

// ListEvents возвращает журнал трекинга в хронологическом порядке.
func (c *Coordinator) ListEvents(ctx context.Context, shipmentID int64, publicOnly bool) ([]domain.TrackingEvent, error) {
	if _, err := c.shipments.Get(ctx, shipmentID); err != nil {
		return nil, err
	}
	return c.shipments.ListEvents(ctx, shipmentID, publicOnly)
}

// ListForOrder возвращает отгрузки заказа.
func (c *Coordinator) ListForOrder(ctx context.Context, orderID int64) ([]domain.Shipment, error) {
	if _, err := c.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return c.shipments.ListByOrder(ctx, orderID)
}

func (c *Coordinator) emit(ctx context.Context, eventType kafka.EventType, shipment domain.Shipment, actor, description, location string) error {
	payload := kafka.NewShipmentEvent(eventType, shipment, actor)
	payload.Description = description
	payload.Location = location
	return c.events.Emit(ctx, domain.AggregateShipment, shipment.ID, eventType, payload)
}

func orderIDField(shipment domain.Shipment) any {
	if shipment.OrderID == nil {
		return nil
	}
	return *shipment.OrderID
}
