package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShipmentType - направление потока товара.
type ShipmentType string

const (
	ShipmentTypeOutbound ShipmentType = "OUTBOUND"
	ShipmentTypeInbound  ShipmentType = "INBOUND"
)

// Valid проверяет, что тип отгрузки поддерживается.
func (t ShipmentType) Valid() bool {
	return t == ShipmentTypeOutbound || t == ShipmentTypeInbound
}

// ShipmentStatus - статус отгрузки у перевозчика.
type ShipmentStatus string

const (
	ShipmentStatusPending        ShipmentStatus = "PENDING"
	ShipmentStatusInTransit      ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentStatusDelivered      ShipmentStatus = "DELIVERED"
	ShipmentStatusReturned       ShipmentStatus = "RETURNED"
	ShipmentStatusCancelled      ShipmentStatus = "CANCELLED"
)

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusPending:        {ShipmentStatusInTransit, ShipmentStatusCancelled},
	ShipmentStatusInTransit:      {ShipmentStatusOutForDelivery, ShipmentStatusDelivered, ShipmentStatusReturned, ShipmentStatusCancelled},
	ShipmentStatusOutForDelivery: {ShipmentStatusDelivered, ShipmentStatusReturned},
	ShipmentStatusDelivered:      {},
	ShipmentStatusReturned:       {},
	ShipmentStatusCancelled:      {},
}

// Valid проверяет, что статус известен.
func (s ShipmentStatus) Valid() bool {
	_, ok := shipmentTransitions[s]
	return ok
}

// CanTransitionTo сообщает, допустим ли шаг s -> target.
func (s ShipmentStatus) CanTransitionTo(target ShipmentStatus) bool {
	for _, next := range shipmentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsActive - активной считается любая неотменённая отгрузка.
func (s ShipmentStatus) IsActive() bool {
	return s != ShipmentStatusCancelled
}

// Shipment - отгрузка заказа или входящая поставка.
type Shipment struct {
	ID                    int64
	OrderID               *int64
	Type                  ShipmentType
	TrackingNumber        string
	Status                ShipmentStatus
	ShippingMethodID      int64
	WeightKg              decimal.Decimal
	ShippingCost          decimal.Decimal
	EstimatedDeliveryDate *time.Time
	RecipientName         string
	RecipientPhone        string
	PackageQuantity       int32
	RequireSignature      bool
	Notes                 string
	ShippedAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsActiveOutboundFor сообщает, считается ли отгрузка активной исходящей для заказа.
func (s Shipment) IsActiveOutboundFor(orderID int64) bool {
	return s.Type == ShipmentTypeOutbound &&
		s.OrderID != nil && *s.OrderID == orderID &&
		s.Status.IsActive()
}

// Validate проверяет поля отгрузки и возвращает ошибки, если они есть.
func (s *Shipment) Validate() []error {
	var errs []error

	if !s.Type.Valid() {
		errs = append(errs, ErrShipmentTypeUnknown)
	}
	if s.Type == ShipmentTypeOutbound && s.OrderID == nil {
		errs = append(errs, ErrOrderIDRequired)
	}
	if s.TrackingNumber == "" {
		errs = append(errs, ErrTrackingNumberRequired)
	}
	if !s.WeightKg.IsPositive() {
		errs = append(errs, ErrWeightInvalid)
	}
	if s.ShippingCost.IsNegative() {
		errs = append(errs, ErrShippingCostNegative)
	}
	if s.PackageQuantity <= 0 {
		errs = append(errs, ErrPackageQuantityInvalid)
	}

	return errs
}

// TrackingEvent - запись журнала перевозчика; журнал только дополняется.
type TrackingEvent struct {
	ID          int64
	ShipmentID  int64
	Status      ShipmentStatus
	Description string
	Location    string
	EventDate   time.Time
	IsPublic    bool
	CreatedAt   time.Time
}

// ShippingMethod - справочник способов доставки, только для чтения.
type ShippingMethod struct {
	ID               int64
	Name             string
	BaseCost         decimal.Decimal
	CostPerKg        decimal.Decimal
	EstimatedDaysMin int
	EstimatedDaysMax int
	IsActive         bool
}

// QuoteCost возвращает base_cost + cost_per_kg * weight, округлённые до копеек.
func (m ShippingMethod) QuoteCost(weightKg decimal.Decimal) decimal.Decimal {
	return m.BaseCost.Add(m.CostPerKg.Mul(weightKg)).Round(2)
}

// EstimateDelivery возвращает самую позднюю ожидаемую дату доставки от from.
func (m ShippingMethod) EstimateDelivery(from time.Time) time.Time {
	return from.AddDate(0, 0, m.EstimatedDaysMax)
}
