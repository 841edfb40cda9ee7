package memory

import "github.com/vladislavdragonenkov/billing/internal/domain"

// Store собирает in-memory репозитории с общим Transactor.
type Store struct {
	Tx              *Transactor
	Orders          domain.OrderRepository
	Timeline        domain.TimelineRepository
	Series          domain.SeriesRepository
	Invoices        domain.InvoiceRepository
	Shipments       domain.ShipmentRepository
	ShippingMethods domain.ShippingMethodRepository
	Payments        domain.PaymentRepository
	Outbox          *OutboxRepository
	Idempotency     domain.IdempotencyRepository
}

// NewStore создаёт пустое хранилище со справочником доставки по умолчанию.
func NewStore() *Store {
	return &Store{
		Tx:              NewTransactor(),
		Orders:          NewOrderRepository(),
		Timeline:        NewTimelineRepository(),
		Series:          NewSeriesRepository(),
		Invoices:        NewInvoiceRepository(),
		Shipments:       NewShipmentRepository(),
		ShippingMethods: NewShippingMethodRepository(),
		Payments:        NewPaymentRepository(),
		Outbox:          NewOutboxRepository(),
		Idempotency:     NewIdempotencyRepository(),
	}
}
