package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа в бэкофисе.
type OrderStatus string

const (
	// OrderStatusPending - заказ создан, оплата ещё не запрошена.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusAwaitPayment - клиенту выставлена оплата, ждём поступлений.
	OrderStatusAwaitPayment OrderStatus = "AWAIT_PAYMENT"
	// OrderStatusPaid - сумма платежей покрыла итог заказа.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusProcessing - заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped - заказ передан перевозчику.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered - заказ получен клиентом.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled - заказ отменён (терминальный).
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded - деньги возвращены (терминальный).
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// orderTransitions - единственное место, где задан граф переходов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:      {OrderStatusAwaitPayment, OrderStatusCancelled},
	OrderStatusAwaitPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:         {OrderStatusProcessing, OrderStatusRefunded},
	OrderStatusProcessing:   {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:      {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:    {OrderStatusRefunded},
	OrderStatusCancelled:    {},
	OrderStatusRefunded:     {},
}

// Valid проверяет, что статус известен графу.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Successors возвращает копию списка допустимых следующих статусов.
func (s OrderStatus) Successors() []OrderStatus {
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo сообщает, является ли target прямым преемником s.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal - CANCELLED и REFUNDED поглощающие.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// IsInvoiceable - окно выставления документа: PAID или любой следующий нетерминальный статус.
func (s OrderStatus) IsInvoiceable() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// AllowsOutboundShipment - исходящая отгрузка создаётся только для оплаченного, ещё не доставленного заказа.
func (s OrderStatus) AllowsOutboundShipment() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped:
		return true
	default:
		return false
	}
}

// CancelTarget возвращает терминальный статус, в который ведёт отмена из s.
func (s OrderStatus) CancelTarget() (OrderStatus, bool) {
	switch {
	case s.CanTransitionTo(OrderStatusCancelled):
		return OrderStatusCancelled, true
	case s.CanTransitionTo(OrderStatusRefunded):
		return OrderStatusRefunded, true
	default:
		return "", false
	}
}

// Address - адрес доставки или плательщика.
type Address struct {
	Recipient  string `json:"recipient,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// IsZero сообщает, что адрес не заполнен.
func (a Address) IsZero() bool {
	return a.Line1 == "" && a.City == "" && a.Country == ""
}

// OrderItem - позиция заказа с ценой, зафиксированной на момент оформления.
type OrderItem struct {
	ID        int64
	VariantID string
	Quantity  int32
	UnitPrice decimal.Decimal
}

// Subtotal возвращает quantity * unit_price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              int64
	OrderNumber     string
	CustomerID      string
	CustomerName    string
	Status          OrderStatus
	Currency        string
	Items           []OrderItem
	ShippingAddress Address
	BillingAddress  *Address
	ShippingCost    decimal.Decimal
	Total           decimal.Decimal
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ComputeTotal считает сумму позиций и доставки.
func ComputeTotal(items []OrderItem, shippingCost decimal.Decimal) decimal.Decimal {
	total := shippingCost
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.ShippingAddress.IsZero() {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.ShippingCost.IsNegative() {
		errs = append(errs, ErrShippingCostNegative)
	}

	for _, item := range o.Items {
		if item.VariantID == "" {
			errs = append(errs, ErrItemVariantRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !ComputeTotal(o.Items, o.ShippingCost).Equal(o.Total) {
		errs = append(errs, ErrOrderTotalMismatch)
	}

	return errs
}
