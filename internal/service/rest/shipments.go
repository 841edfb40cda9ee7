package rest

import (
	"net/http"
	"strconv"

	"github.com/vladislavdragonenkov/billing/internal/service/shipment"
)

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.shipments.CreateForOrder(r.Context(), shipment.CreateRequest{
		OrderID:               req.OrderID,
		ShipmentType:          req.ShipmentType,
		ShippingMethodID:      req.ShippingMethodID,
		TrackingNumber:        req.TrackingNumber,
		WeightKg:              req.WeightKg,
		ShippingCost:          req.ShippingCost,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		RecipientName:         req.RecipientName,
		RecipientPhone:        req.RecipientPhone,
		PackageQuantity:       req.PackageQuantity,
		RequireSignature:      req.RequireSignature,
		Notes:                 req.Notes,
		Actor:                 actorFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(created))
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.shipments.Get(r.Context(), shipmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(s))
}

func (h *Handler) deleteShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.shipments.Delete(r.Context(), shipmentID, actorFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markShipped(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req markShippedRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	if !req.TransitionOrder {
		s, err := h.shipments.MarkShipped(r.Context(), shipmentID, actorFrom(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, markShippedResponse{Shipment: toShipmentResponse(s)})
		return
	}

	s, order, err := h.shipments.MarkShippedAndTransition(r.Context(), shipmentID, actorFrom(r), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	orderResp := toOrderResponse(order)
	writeJSON(w, http.StatusOK, markShippedResponse{Shipment: toShipmentResponse(s), Order: &orderResp})
}

func (h *Handler) cancelShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	s, err := h.shipments.Cancel(r.Context(), shipmentID, actorFrom(r), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(s))
}

func (h *Handler) recordTrackingEvent(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req trackingEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	event, err := h.shipments.RecordTrackingEvent(r.Context(), shipment.TrackingEventRequest{
		ShipmentID:  shipmentID,
		Status:      req.Status,
		Description: req.Description,
		Location:    req.Location,
		EventDate:   req.EventDate,
		IsPublic:    req.IsPublic,
		Actor:       actorFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTrackingEventResponse(event))
}

func (h *Handler) listTrackingEvents(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	publicOnly, _ := strconv.ParseBool(r.URL.Query().Get("public"))

	events, err := h.shipments.ListEvents(r.Context(), shipmentID, publicOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]trackingEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toTrackingEventResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
