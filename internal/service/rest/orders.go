package rest

import (
	"net/http"

	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/billing/internal/service/payment"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	items := make([]lifecycle.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, lifecycle.ItemRequest{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order, err := h.orders.Create(r.Context(), lifecycle.CreateOrderRequest{
		OrderNumber:     req.OrderNumber,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		Currency:        req.Currency,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingCost:    req.ShippingCost,
		Actor:           actorFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.orders.Timeline(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimelineResponse(records))
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.orders.Transition(r.Context(), lifecycle.TransitionRequest{
		OrderID: orderID,
		Target:  req.Status,
		Actor:   actorFrom(r),
		Notes:   req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.orders.Cancel(r.Context(), orderID, actorFrom(r), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req recordPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	record := payment.RecordRequest{
		OrderID:         orderID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          req.Amount,
		TransactionID:   req.TransactionID,
	}
	if req.PaymentDate != nil {
		record.PaymentDate = req.PaymentDate.UTC()
	}

	result, err := h.payments.Record(r.Context(), record)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toPaymentResponse(result.Payment)
	resp.Duplicate = result.Duplicate
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	// Неизвестный заказ даёт 404, а не пустой список.
	if _, err := h.orders.Get(r.Context(), orderID); err != nil {
		writeError(w, err)
		return
	}

	payments, err := h.payments.List(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := h.payments.TotalPaid(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := paymentsResponse{OrderID: orderID, TotalPaid: money(total), Payments: make([]paymentResponse, 0, len(payments))}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activeInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.invoices.ActiveForOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) listOrderShipments(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	shipments, err := h.shipments.ListForOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]shipmentResponse, 0, len(shipments))
	for _, s := range shipments {
		resp = append(resp, toShipmentResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}
