package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"

	// Invoice события
	EventTypeInvoiceIssued        EventType = "invoice.issued"
	EventTypeInvoiceStatusChanged EventType = "invoice.status_changed"

	// Shipment события
	EventTypeShipmentCreated       EventType = "shipment.created"
	EventTypeShipmentStatusChanged EventType = "shipment.status_changed"
	EventTypeShipmentTrackingEvent EventType = "shipment.tracking_event"
	EventTypeShipmentDeleted       EventType = "shipment.deleted"

	// Payment события
	EventTypePaymentRecorded EventType = "payment.recorded"

	// Серии документов
	EventTypeSeriesAdjusted EventType = "document_series.adjusted"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "billing.order.events"
	TopicInvoiceEvents   = "billing.invoice.events"
	TopicShipmentEvents  = "billing.shipment.events"
	TopicPaymentEvents   = "billing.payment.events"
	TopicPaymentSettled  = "billing.payment.settled"
	TopicDeadLetterQueue = "billing.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TopicForAggregate выбирает topic по типу агрегата outbox-сообщения.
func TopicForAggregate(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateInvoice, domain.AggregateSeries:
		return TopicInvoiceEvents
	case domain.AggregateShipment:
		return TopicShipmentEvents
	case domain.AggregatePayment:
		return TopicPaymentEvents
	default:
		return TopicOrderEvents
	}
}

// OrderEvent - событие заказа: создание и смена статуса.
type OrderEvent struct {
	EventType   EventType          `json:"event_type"`
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	CustomerID  string             `json:"customer_id"`
	From        domain.OrderStatus `json:"from,omitempty"`
	Status      domain.OrderStatus `json:"status"`
	Total       decimal.Decimal    `json:"total"`
	Currency    string             `json:"currency"`
	Actor       string             `json:"actor,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// InvoiceEvent - выдача документа и смена его статуса.
type InvoiceEvent struct {
	EventType   EventType            `json:"event_type"`
	InvoiceID   int64                `json:"invoice_id"`
	OrderID     int64                `json:"order_id"`
	InvoiceType domain.InvoiceType   `json:"invoice_type"`
	SeriesCode  string               `json:"series_code"`
	Number      string               `json:"number"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	Status      domain.InvoiceStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	Actor       string               `json:"actor,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// ShipmentEvent - создание, смена статуса, события трекинга и удаление отгрузки.
type ShipmentEvent struct {
	EventType      EventType             `json:"event_type"`
	ShipmentID     int64                 `json:"shipment_id"`
	OrderID        *int64                `json:"order_id,omitempty"`
	ShipmentType   domain.ShipmentType   `json:"shipment_type"`
	TrackingNumber string                `json:"tracking_number"`
	Status         domain.ShipmentStatus `json:"status"`
	Description    string                `json:"description,omitempty"`
	Location       string                `json:"location,omitempty"`
	Actor          string                `json:"actor,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

// PaymentEvent - зафиксированный платёж.
type PaymentEvent struct {
	EventType     EventType       `json:"event_type"`
	PaymentID     int64           `json:"payment_id"`
	OrderID       int64           `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaymentDate   time.Time       `json:"payment_date"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SeriesEvent - ручная корректировка счётчика серии.
type SeriesEvent struct {
	EventType    EventType           `json:"event_type"`
	SeriesID     int64               `json:"series_id"`
	DocumentType domain.DocumentType `json:"document_type"`
	SeriesCode   string              `json:"series_code"`
	Previous     int64               `json:"previous_number"`
	Current      int64               `json:"current_number"`
	Actor        string              `json:"actor,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// PaymentSettledEvent - входящее сообщение платёжного контура о поступившей оплате.
type PaymentSettledEvent struct {
	OrderID         int64           `json:"order_id"`
	PaymentMethodID int64           `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   string          `json:"transaction_id"`
	PaymentDate     time.Time       `json:"payment_date"`
}

// NewOrderEvent собирает событие заказа из его текущего состояния.
func NewOrderEvent(eventType EventType, order domain.Order, from domain.OrderStatus, actor, reason string) *OrderEvent {
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		From:        from,
		Status:      order.Status,
		Total:       order.Total,
		Currency:    order.Currency,
		Actor:       actor,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
}

// NewInvoiceEvent собирает событие документа.
func NewInvoiceEvent(eventType EventType, invoice domain.Invoice, actor string) *InvoiceEvent {
	return &InvoiceEvent{
		EventType:   eventType,
		InvoiceID:   invoice.ID,
		OrderID:     invoice.OrderID,
		InvoiceType: invoice.Type,
		SeriesCode:  invoice.SeriesCode,
		Number:      invoice.Number,
		TotalAmount: invoice.TotalAmount,
		Status:      invoice.Status,
		Reason:      invoice.StatusReason,
		Actor:       actor,
		Timestamp:   time.Now().UTC(),
	}
}

// NewShipmentEvent собирает событие отгрузки.
func NewShipmentEvent(eventType EventType, shipment domain.Shipment, actor string) *ShipmentEvent {
	return &ShipmentEvent{
		EventType:      eventType,
		ShipmentID:     shipment.ID,
		OrderID:        shipment.OrderID,
		ShipmentType:   shipment.Type,
		TrackingNumber: shipment.TrackingNumber,
		Status:         shipment.Status,
		Actor:          actor,
		Timestamp:      time.Now().UTC(),
	}
}

// NewPaymentEvent собирает событие платежа.
func NewPaymentEvent(payment domain.Payment) *PaymentEvent {
	return &PaymentEvent{
		EventType:     EventTypePaymentRecorded,
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		TransactionID: payment.TransactionID,
		PaymentDate:   payment.PaymentDate,
		Timestamp:     time.Now().UTC(),
	}
}
