package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type itemRequest struct {
	VariantID string          `json:"variantId"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	OrderNumber     string          `json:"orderNumber"`
	CustomerID      string          `json:"customerId"`
	CustomerName    string          `json:"customerName"`
	Currency        string          `json:"currency"`
	Items           []itemRequest   `json:"items"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress,omitempty"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
}

type transitionRequest struct {
	Status domain.OrderStatus `json:"status"`
	Notes  string             `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type recordPaymentRequest struct {
	PaymentMethodID int64           `json:"paymentMethodId"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   string          `json:"transactionId"`
	PaymentDate     *time.Time      `json:"paymentDate,omitempty"`
}

type issueInvoiceRequest struct {
	OrderID       int64              `json:"orderId"`
	InvoiceType   domain.InvoiceType `json:"invoiceType"`
	SeriesID      int64              `json:"seriesId"`
	ReceiverTaxID string             `json:"receiverTaxId"`
	ReceiverName  string             `json:"receiverName"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	TaxAmount     decimal.Decimal    `json:"taxAmount"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	IssuedAt      *time.Time         `json:"issuedAt,omitempty"`
}

type invoiceStatusRequest struct {
	Status domain.InvoiceStatus `json:"status"`
	Reason string               `json:"reason"`
}

type createShipmentRequest struct {
	OrderID               *int64              `json:"orderId,omitempty"`
	ShipmentType          domain.ShipmentType `json:"shipmentType"`
	ShippingMethodID      int64               `json:"shippingMethodId"`
	TrackingNumber        string              `json:"trackingNumber"`
	WeightKg              decimal.Decimal     `json:"weightKg"`
	ShippingCost          *decimal.Decimal    `json:"shippingCost,omitempty"`
	EstimatedDeliveryDate *time.Time          `json:"estimatedDeliveryDate,omitempty"`
	RecipientName         string              `json:"recipientName"`
	RecipientPhone        string              `json:"recipientPhone"`
	PackageQuantity       int32               `json:"packageQuantity"`
	RequireSignature      bool                `json:"requireSignature"`
	Notes                 string              `json:"notes"`
}

type markShippedRequest struct {
	TransitionOrder bool   `json:"transitionOrder"`
	Notes           string `json:"notes"`
}

type trackingEventRequest struct {
	Status      domain.ShipmentStatus `json:"status"`
	Description string                `json:"description"`
	Location    string                `json:"location"`
	EventDate   time.Time             `json:"eventDate"`
	IsPublic    bool                  `json:"isPublic"`
}

type createSeriesRequest struct {
	DocumentType   domain.DocumentType `json:"documentType"`
	Code           string              `json:"code"`
	StartingNumber *int64              `json:"startingNumber,omitempty"`
}

type updateSeriesRequest struct {
	StartingNumber *int64 `json:"startingNumber,omitempty"`
	Reason         string `json:"reason"`
}

type allocateRequest struct {
	DocumentType domain.DocumentType `json:"documentType"`
	Code         string              `json:"code"`
}

type itemResponse struct {
	ID        int64  `json:"id"`
	VariantID string `json:"variantId"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID              int64              `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	CustomerID      string             `json:"customerId"`
	CustomerName    string             `json:"customerName,omitempty"`
	Status          domain.OrderStatus `json:"status"`
	Currency        string             `json:"currency"`
	Items           []itemResponse     `json:"items"`
	ShippingAddress domain.Address     `json:"shippingAddress"`
	BillingAddress  *domain.Address    `json:"billingAddress,omitempty"`
	ShippingCost    string             `json:"shippingCost"`
	Total           string             `json:"total"`
	CancelReason    string             `json:"cancelReason,omitempty"`
	Version         int64              `json:"version"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]itemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemResponse{
			ID:        item.ID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPrice),
			Subtotal:  money(item.Subtotal()),
		})
	}
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		CustomerName:    order.CustomerName,
		Status:          order.Status,
		Currency:        order.Currency,
		Items:           items,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		ShippingCost:    money(order.ShippingCost),
		Total:           money(order.Total),
		CancelReason:    order.CancelReason,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

type transitionResponse struct {
	ID         int64              `json:"id"`
	From       domain.OrderStatus `json:"from,omitempty"`
	To         domain.OrderStatus `json:"to"`
	Actor      string             `json:"actor"`
	Notes      string             `json:"notes,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

func toTimelineResponse(records []domain.TransitionRecord) []transitionResponse {
	out := make([]transitionResponse, 0, len(records))
	for _, r := range records {
		out = append(out, transitionResponse{
			ID:         r.ID,
			From:       r.From,
			To:         r.To,
			Actor:      r.Actor,
			Notes:      r.Notes,
			OccurredAt: r.OccurredAt,
		})
	}
	return out
}

type paymentResponse struct {
	ID              int64     `json:"id"`
	OrderID         int64     `json:"orderId"`
	PaymentMethodID int64     `json:"paymentMethodId"`
	Amount          string    `json:"amount"`
	TransactionID   string    `json:"transactionId,omitempty"`
	PaymentDate     time.Time `json:"paymentDate"`
	Duplicate       bool      `json:"duplicate,omitempty"`
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		PaymentMethodID: p.PaymentMethodID,
		Amount:          money(p.Amount),
		TransactionID:   p.TransactionID,
		PaymentDate:     p.PaymentDate,
	}
}

type paymentsResponse struct {
	OrderID   int64             `json:"orderId"`
	TotalPaid string            `json:"totalPaid"`
	Payments  []paymentResponse `json:"payments"`
}

type invoiceResponse struct {
	ID            int64                `json:"id"`
	OrderID       int64                `json:"orderId"`
	InvoiceType   domain.InvoiceType   `json:"invoiceType"`
	SeriesID      int64                `json:"seriesId"`
	SeriesCode    string               `json:"seriesCode"`
	Number        string               `json:"number"`
	FullNumber    string               `json:"fullNumber"`
	ReceiverTaxID string               `json:"receiverTaxId"`
	ReceiverName  string               `json:"receiverName"`
	Currency      string               `json:"currency,omitempty"`
	Subtotal      string               `json:"subtotal"`
	TaxAmount     string               `json:"taxAmount"`
	TotalAmount   string               `json:"totalAmount"`
	Status        domain.InvoiceStatus `json:"status"`
	StatusReason  string               `json:"statusReason,omitempty"`
	IssuedAt      time.Time            `json:"issuedAt"`
}

func toInvoiceResponse(inv domain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:            inv.ID,
		OrderID:       inv.OrderID,
		InvoiceType:   inv.Type,
		SeriesID:      inv.SeriesID,
		SeriesCode:    inv.SeriesCode,
		Number:        inv.Number,
		FullNumber:    inv.SeriesCode + "-" + inv.Number,
		ReceiverTaxID: inv.ReceiverTaxID,
		ReceiverName:  inv.ReceiverName,
		Currency:      inv.Currency,
		Subtotal:      money(inv.Subtotal),
		TaxAmount:     money(inv.TaxAmount),
		TotalAmount:   money(inv.TotalAmount),
		Status:        inv.Status,
		StatusReason:  inv.StatusReason,
		IssuedAt:      inv.IssuedAt,
	}
}

type shipmentResponse struct {
	ID                    int64                 `json:"id"`
	OrderID               *int64                `json:"orderId,omitempty"`
	ShipmentType          domain.ShipmentType   `json:"shipmentType"`
	TrackingNumber        string                `json:"trackingNumber"`
	Status                domain.ShipmentStatus `json:"status"`
	ShippingMethodID      int64                 `json:"shippingMethodId"`
	WeightKg              string                `json:"weightKg"`
	ShippingCost          string                `json:"shippingCost"`
	EstimatedDeliveryDate *time.Time            `json:"estimatedDeliveryDate,omitempty"`
	RecipientName         string                `json:"recipientName,omitempty"`
	RecipientPhone        string                `json:"recipientPhone,omitempty"`
	PackageQuantity       int32                 `json:"packageQuantity"`
	RequireSignature      bool                  `json:"requireSignature"`
	Notes                 string                `json:"notes,omitempty"`
	ShippedAt             *time.Time            `json:"shippedAt,omitempty"`
	CreatedAt             time.Time             `json:"createdAt"`
}

func toShipmentResponse(s domain.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:                    s.ID,
		OrderID:               s.OrderID,
		ShipmentType:          s.Type,
		TrackingNumber:        s.TrackingNumber,
		Status:                s.Status,
		ShippingMethodID:      s.ShippingMethodID,
		WeightKg:              s.WeightKg.StringFixed(3),
		ShippingCost:          money(s.ShippingCost),
		EstimatedDeliveryDate: s.EstimatedDeliveryDate,
		RecipientName:         s.RecipientName,
		RecipientPhone:        s.RecipientPhone,
		PackageQuantity:       s.PackageQuantity,
		RequireSignature:      s.RequireSignature,
		Notes:                 s.Notes,
		ShippedAt:             s.ShippedAt,
		CreatedAt:             s.CreatedAt,
	}
}

type markShippedResponse struct {
	Shipment shipmentResponse `json:"shipment"`
	Order    *orderResponse   `json:"order,omitempty"`
}

type trackingEventResponse struct {
	ID          int64                 `json:"id"`
	ShipmentID  int64                 `json:"shipmentId"`
	Status      domain.ShipmentStatus `json:"status"`
	Description string                `json:"description,omitempty"`
	Location    string                `json:"location,omitempty"`
	EventDate   time.Time             `json:"eventDate"`
	IsPublic    bool                  `json:"isPublic"`
}

func toTrackingEventResponse(e domain.TrackingEvent) trackingEventResponse {
	return trackingEventResponse{
		ID:          e.ID,
		ShipmentID:  e.ShipmentID,
		Status:      e.Status,
		Description: e.Description,
		Location:    e.Location,
		EventDate:   e.EventDate,
		IsPublic:    e.IsPublic,
	}
}

type seriesResponse struct {
	ID            int64               `json:"id"`
	DocumentType  domain.DocumentType `json:"documentType"`
	Code          string              `json:"code"`
	CurrentNumber int64               `json:"currentNumber"`
	NextNumber    string              `json:"nextNumber,omitempty"`
	IsActive      bool                `json:"isActive"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func toSeriesResponse(s domain.DocumentSeries) seriesResponse {
	resp := seriesResponse{
		ID:            s.ID,
		DocumentType:  s.DocumentType,
		Code:          s.Code,
		CurrentNumber: s.CurrentNumber,
		IsActive:      s.IsActive,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.CurrentNumber < domain.MaxDocumentNumber {
		resp.NextNumber = domain.FormatNumber(s.CurrentNumber + 1)
	}
	return resp
}

type gapResponse struct {
	ID         int64     `json:"id"`
	SeriesCode string    `json:"seriesCode"`
	Number     string    `json:"number"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

func toGapResponse(g domain.NumberGap) gapResponse {
	return gapResponse{
		ID:         g.ID,
		SeriesCode: g.SeriesCode,
		Number:     domain.FormatNumber(g.Number),
		Reason:     g.Reason,
		OccurredAt: g.OccurredAt,
	}
}

type allocateResponse struct {
	DocumentType domain.DocumentType `json:"documentType"`
	Code         string              `json:"code"`
	Number       int64               `json:"number"`
	Formatted    string              `json:"formatted"`
	FullNumber   string              `json:"fullNumber"`
}
