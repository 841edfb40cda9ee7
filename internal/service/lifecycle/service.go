package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/inventory"
	"github.com/vladislavdragonenkov/billing/internal/service/outbox"
)

// DefaultActor записывается в аудит, если вызывающий не назвал себя.
const DefaultActor = "system"

// PaymentTotals отдаёт сумму зафиксированных платежей по заказу.
type PaymentTotals interface {
	TotalPaid(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

// Dependencies - хранилища и коллабораторы жизненного цикла заказа.
type Dependencies struct {
	Tx        domain.Transactor
	Orders    domain.OrderRepository
	Timeline  domain.TimelineRepository
	Shipments domain.ShipmentRepository
	Payments  PaymentTotals
	Inventory domain.InventoryGate
	Outbox    domain.OutboxRepository
}

// Service - единственный компонент, который меняет статус заказа.
type Service struct {
	tx        domain.Transactor
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	shipments domain.ShipmentRepository
	payments  PaymentTotals
	inventory domain.InventoryGate
	events    *outbox.Emitter
	logger    *log.Entry
	metrics   *metrics.BillingMetrics
	retry     RetryConfig
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryConfig задаёт повторы при конфликте версий.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg.normalized()
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис жизненного цикла заказа.
func NewService(deps Dependencies, options ...Option) *Service {
	s := &Service{
		tx:        deps.Tx,
		orders:    deps.Orders,
		timeline:  deps.Timeline,
		shipments: deps.Shipments,
		payments:  deps.Payments,
		inventory: deps.Inventory,
		logger:    log.WithField("component", "order-lifecycle"),
		retry:     DefaultRetryConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.inventory == nil {
		s.inventory = inventory.NewGate(s.logger.WithField("component", "inventory-gate"))
	}
	s.events = outbox.NewEmitter(deps.Outbox, s.metrics)
	return s
}

// ItemRequest - позиция нового заказа.
type ItemRequest struct {
	VariantID string
	Quantity  int32
	UnitPrice decimal.Decimal
}

// CreateOrderRequest - приём заказа от checkout.
type CreateOrderRequest struct {
	OrderNumber     string
	CustomerID      string
	CustomerName    string
	Currency        string
	Items           []ItemRequest
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	ShippingCost    decimal.Decimal
	Actor           string
}

// TransitionRequest - запрос смены статуса заказа.
type TransitionRequest struct {
	OrderID int64
	Target  domain.OrderStatus
	Actor   string
	Notes   string
}

// UnitFunc выполняется внутри единицы сериализации заказа и видит его свежее состояние.
type UnitFunc func(ctx context.Context, order domain.Order) error

// Create принимает заказ в статусе PENDING.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	now := s.now()
	order := domain.Order{
		OrderNumber:     strings.TrimSpace(req.OrderNumber),
		CustomerID:      strings.TrimSpace(req.CustomerID),
		CustomerName:    req.CustomerName,
		Status:          domain.OrderStatusPending,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingCost:    domain.RoundMoney(req.ShippingCost),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: domain.RoundMoney(item.UnitPrice),
		})
	}
	order.Total = domain.ComputeTotal(order.Items, order.ShippingCost)
	if err := domain.ValidationErrors(order.ValidateInvariants()); err != nil {
		return domain.Order{}, err
	}
	if order.OrderNumber == "" {
		order.OrderNumber = generateOrderNumber(now)
	}
	actor := actorOrDefault(req.Actor)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, &order); err != nil {
			return err
		}
		if err := s.timeline.Append(ctx, domain.TransitionRecord{
			OrderID:    order.ID,
			To:         domain.OrderStatusPending,
			Actor:      actor,
			Notes:      "order created",
			OccurredAt: now,
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, domain.AggregateOrder, order.ID, kafka.EventTypeOrderCreated,
			kafka.NewOrderEvent(kafka.EventTypeOrderCreated, order, "", actor, ""))
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_number", order.OrderNumber).Warn("order create failed")
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total.StringFixed(2),
	}).Info("order created")
	return order, nil
}

// Get читает заказ.
func (s *Service) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// Timeline возвращает аудит переходов заказа в хронологическом порядке.
func (s *Service) Timeline(ctx context.Context, orderID int64) ([]domain.TransitionRecord, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.timeline.List(ctx, orderID)
}

// Transition переводит заказ в прямой статус-преемник.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (domain.Order, error) {
	return s.TransitionWith(ctx, req, nil)
}

// TransitionWith выполняет fn и переход в одной транзакции: либо оба, либо ничего.
// fn вызывается до проверки предусловий, поэтому может их обеспечить.
func (s *Service) TransitionWith(ctx context.Context, req TransitionRequest, fn UnitFunc) (domain.Order, error) {
	if !req.Target.Valid() {
		return domain.Order{}, domain.ValidationError(domain.ErrStatusUnknown, "target")
	}
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("order.transition", time.Since(start)) }()

	var (
		result domain.Order
		from   domain.OrderStatus
	)
	err := s.runUnit(ctx, req.OrderID, "transition", func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(req.Target) {
			return invalidTransition(order, req.Target)
		}
		if fn != nil {
			if err := fn(ctx, order); err != nil {
				return err
			}
		}
		if err := s.checkPreconditions(ctx, order, req.Target); err != nil {
			return err
		}

		from = order.Status
		result, err = s.apply(ctx, order, req.Target, req.Actor, req.Notes, "")
		return err
	})
	if err != nil {
		s.rejected(req.OrderID, req.Target, err)
		return domain.Order{}, err
	}

	s.committed(result, from)
	return result, nil
}

// Cancel ведёт заказ в CANCELLED, если это ребро допустимо, иначе в REFUNDED.
func (s *Service) Cancel(ctx context.Context, orderID int64, actor, reason string) (domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Order{}, domain.ValidationError(domain.ErrReasonRequired, "reason")
	}

	var (
		result domain.Order
		from   domain.OrderStatus
		target domain.OrderStatus
	)
	err := s.runUnit(ctx, orderID, "cancel", func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		var ok bool
		target, ok = order.Status.CancelTarget()
		if !ok {
			return invalidTransition(order, domain.OrderStatusCancelled)
		}

		from = order.Status
		result, err = s.apply(ctx, order, target, actor, reason, reason)
		return err
	})
	if err != nil {
		s.rejected(orderID, domain.OrderStatusCancelled, err)
		return domain.Order{}, err
	}

	s.committed(result, from)
	return result, nil
}

// Touch выполняет fn в единице сериализации заказа: транзакция и повышение версии
// без смены статуса. Параллельные Touch одного заказа выполняются по очереди.
func (s *Service) Touch(ctx context.Context, orderID int64, fn UnitFunc) (domain.Order, error) {
	var result domain.Order
	err := s.runUnit(ctx, orderID, "touch", func(ctx context.Context) error {
		order, err := s.lock(ctx, orderID)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(ctx, order); err != nil {
				return err
			}
		}
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// ReleaseShipment выполняет fn (снятие исходящей отгрузки) и, если заказ в PROCESSING
// и активных исходящих отгрузок не осталось, возвращает его в PAID.
func (s *Service) ReleaseShipment(ctx context.Context, orderID int64, actor string, fn UnitFunc) (domain.Order, error) {
	var (
		result   domain.Order
		reverted bool
	)
	err := s.runUnit(ctx, orderID, "release_shipment", func(ctx context.Context) error {
		reverted = false
		order, err := s.lock(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusShipped || order.Status == domain.OrderStatusDelivered {
			return domain.ConflictError(domain.ErrShipmentInUse, orderID,
				fmt.Sprintf("order is %s", order.Status))
		}
		if fn != nil {
			if err := fn(ctx, order); err != nil {
				return err
			}
		}

		result = order
		if order.Status != domain.OrderStatusProcessing {
			return nil
		}
		active, err := s.shipments.CountActiveOutbound(ctx, orderID)
		if err != nil {
			return err
		}
		if active > 0 {
			return nil
		}

		result, err = s.apply(ctx, order, domain.OrderStatusPaid, actor, "outbound shipment released", "")
		if err != nil {
			return err
		}
		reverted = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if reverted {
		s.committed(result, domain.OrderStatusProcessing)
	}
	return result, nil
}

// lock читает заказ и повышает его версию: до конца транзакции другие
// единицы работы над этим заказом получат конфликт версий или будут ждать.
func (s *Service) lock(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.UpdatedAt = s.now()
	if err := s.orders.Save(ctx, order); err != nil {
		return domain.Order{}, err
	}
	order.Version++
	return order, nil
}

func (s *Service) checkPreconditions(ctx context.Context, order domain.Order, target domain.OrderStatus) error {
	switch {
	case order.Status == domain.OrderStatusAwaitPayment && target == domain.OrderStatusPaid:
		paid, err := s.payments.TotalPaid(ctx, order.ID)
		if err != nil {
			return err
		}
		if paid.LessThan(order.Total) {
			s.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"paid":     paid.StringFixed(2),
				"total":    order.Total.StringFixed(2),
			}).Info("payments do not cover order total")
			return domain.PreconditionError(order.ID, "payments", "payments do not cover order total")
		}
	case order.Status == domain.OrderStatusProcessing && target == domain.OrderStatusShipped:
		active, err := s.shipments.CountActiveOutbound(ctx, order.ID)
		if err != nil {
			return err
		}
		if active == 0 {
			return domain.PreconditionError(order.ID, "shipment", "order has no active outbound shipment")
		}
	case order.Status == domain.OrderStatusPaid && target == domain.OrderStatusProcessing:
		if err := s.inventory.CheckHold(ctx, order); err != nil {
			return err
		}
	}
	return nil
}

// apply записывает статус с проверкой версии, аудит и событие outbox в текущей транзакции.
func (s *Service) apply(
	ctx context.Context,
	order domain.Order,
	target domain.OrderStatus,
	actor, notes, reason string,
) (domain.Order, error) {
	now := s.now()
	actor = actorOrDefault(actor)
	from := order.Status

	order.Status = target
	order.UpdatedAt = now
	if reason != "" {
		order.CancelReason = reason
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return domain.Order{}, err
	}
	order.Version++

	if err := s.timeline.Append(ctx, domain.TransitionRecord{
		OrderID:    order.ID,
		From:       from,
		To:         target,
		Actor:      actor,
		Notes:      notes,
		OccurredAt: now,
	}); err != nil {
		return domain.Order{}, err
	}

	if err := s.events.Emit(ctx, domain.AggregateOrder, order.ID, kafka.EventTypeOrderStatusChanged,
		kafka.NewOrderEvent(kafka.EventTypeOrderStatusChanged, order, from, actor, reason)); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) committed(order domain.Order, from domain.OrderStatus) {
	s.metrics.RecordTransition(string(from), string(order.Status))
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       order.Status,
		"version":  order.Version,
	}).Info("order status changed")
}

func (s *Service) rejected(orderID int64, target domain.OrderStatus, err error) {
	kind := domain.KindOf(err)
	s.metrics.RecordTransitionRejected(string(kind))

	entry := s.logger.WithError(err).WithFields(log.Fields{
		"order_id": orderID,
		"target":   target,
	})
	if kind == domain.KindInternal {
		entry.Error("order transition failed")
		return
	}
	entry.Info("order transition rejected")
}

func invalidTransition(order domain.Order, target domain.OrderStatus) error {
	return domain.ConflictError(domain.ErrInvalidTransition, order.ID,
		fmt.Sprintf("cannot move order from %s to %s", order.Status, target))
}

func actorOrDefault(actor string) string {
	if actor = strings.TrimSpace(actor); actor == "" {
		return DefaultActor
	}
	return actor
}

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
