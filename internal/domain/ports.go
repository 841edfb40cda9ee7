package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transactor выполняет fn атомарно. Репозитории, получившие ctx из fn,
// работают внутри той же транзакции.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ и проставляет ID и позиции.
	Create(ctx context.Context, order *Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// GetByNumber ищет заказ по человекочитаемому номеру.
	GetByNumber(ctx context.Context, orderNumber string) (Order, error)
	// Save применяет обновления с учётом optimistic locking по Version.
	Save(ctx context.Context, order Order) error
}

// SeriesRepository хранит счётчики серий документов.
type SeriesRepository interface {
	Create(ctx context.Context, series *DocumentSeries) error
	Get(ctx context.Context, id int64) (DocumentSeries, error)
	GetByKey(ctx context.Context, key SeriesKey) (DocumentSeries, error)
	List(ctx context.Context) ([]DocumentSeries, error)
	// Allocate атомарно увеличивает счётчик и возвращает новый номер.
	Allocate(ctx context.Context, key SeriesKey) (int64, error)
	// SetCurrentNumber выполняет ручную корректировку, не допуская уменьшения.
	SetCurrentNumber(ctx context.Context, id, number int64) (DocumentSeries, error)
	// ToggleActive инвертирует флаг активности.
	ToggleActive(ctx context.Context, id int64) (DocumentSeries, error)
	RecordGap(ctx context.Context, gap NumberGap) error
	ListGaps(ctx context.Context, seriesID int64) ([]NumberGap, error)
}

// InvoiceRepository хранит выданные документы.
type InvoiceRepository interface {
	// Create сохраняет документ; ErrOrderAlreadyInvoiced, если у заказа уже есть активный.
	Create(ctx context.Context, invoice *Invoice) error
	Get(ctx context.Context, id int64) (Invoice, error)
	// GetActiveByOrder возвращает неотменённый документ заказа или ErrInvoiceNotFound.
	GetActiveByOrder(ctx context.Context, orderID int64) (Invoice, error)
	// UpdateStatus меняет статус, если текущий равен from.
	UpdateStatus(ctx context.Context, id int64, from, to InvoiceStatus, reason string, at time.Time) (Invoice, error)
}

// ShipmentRepository хранит отгрузки и события трекинга.
type ShipmentRepository interface {
	// Create сохраняет отгрузку; ErrDuplicateTrackingNumber или ErrActiveShipmentExists при конфликте.
	Create(ctx context.Context, shipment *Shipment) error
	Get(ctx context.Context, id int64) (Shipment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Shipment, error)
	// CountActiveOutbound возвращает число активных исходящих отгрузок заказа.
	CountActiveOutbound(ctx context.Context, orderID int64) (int, error)
	// UpdateStatus меняет статус, если текущий равен from.
	UpdateStatus(ctx context.Context, id int64, from, to ShipmentStatus, at time.Time) (Shipment, error)
	// Delete удаляет отгрузку только в статусе PENDING.
	Delete(ctx context.Context, id int64) error
	// AppendEvent добавляет событие, проверяя монотонность event_date.
	AppendEvent(ctx context.Context, event *TrackingEvent) error
	ListEvents(ctx context.Context, shipmentID int64, publicOnly bool) ([]TrackingEvent, error)
}

// ShippingMethodRepository - справочник способов доставки.
type ShippingMethodRepository interface {
	Get(ctx context.Context, id int64) (ShippingMethod, error)
	List(ctx context.Context) ([]ShippingMethod, error)
}

// PaymentRepository хранит факты оплат.
type PaymentRepository interface {
	// Create сохраняет платёж; ErrDuplicatePaymentTransaction при повторном transaction_id.
	Create(ctx context.Context, payment *Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	SumByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

// TimelineRepository хранит журнал переходов заказа.
type TimelineRepository interface {
	Append(ctx context.Context, record TransitionRecord) error
	List(ctx context.Context, orderID int64) ([]TransitionRecord, error)
}

// InventoryGate проверяет, что складские резервы не мешают начать сборку.
type InventoryGate interface {
	CheckHold(ctx context.Context, order Order) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы агрегатов в outbox.
const (
	AggregateOrder    = "order"
	AggregateInvoice  = "invoice"
	AggregateShipment = "shipment"
	AggregatePayment  = "payment"
	AggregateSeries   = "document_series"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
