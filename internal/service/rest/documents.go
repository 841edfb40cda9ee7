package rest

import (
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/service/invoice"
	"github.com/vladislavdragonenkov/billing/internal/service/series"
)

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	var req issueInvoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	inv, err := h.invoices.Issue(r.Context(), invoice.IssueRequest{
		OrderID:       req.OrderID,
		InvoiceType:   req.InvoiceType,
		SeriesID:      req.SeriesID,
		ReceiverTaxID: req.ReceiverTaxID,
		ReceiverName:  req.ReceiverName,
		Subtotal:      req.Subtotal,
		TaxAmount:     req.TaxAmount,
		TotalAmount:   req.TotalAmount,
		IssuedAt:      req.IssuedAt,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.invoices.Get(r.Context(), invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) updateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req invoiceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	inv, err := h.invoices.UpdateStatus(r.Context(), invoiceID, req.Status, req.Reason, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) createSeries(w http.ResponseWriter, r *http.Request) {
	var req createSeriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.series.Create(r.Context(), series.CreateRequest{
		DocumentType:   req.DocumentType,
		Code:           req.Code,
		StartingNumber: req.StartingNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSeriesResponse(created))
}

func (h *Handler) listSeries(w http.ResponseWriter, r *http.Request) {
	list, err := h.series.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]seriesResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, toSeriesResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesID")
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.series.Get(r.Context(), seriesID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(s))
}

func (h *Handler) updateSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateSeriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.series.Update(r.Context(), seriesID, series.UpdateRequest{
		StartingNumber: req.StartingNumber,
		Actor:          actorFrom(r),
		Reason:         req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(updated))
}

func (h *Handler) toggleSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesID")
	if err != nil {
		writeError(w, err)
		return
	}
	toggled, err := h.series.ToggleActive(r.Context(), seriesID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(toggled))
}

func (h *Handler) seriesGaps(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesID")
	if err != nil {
		writeError(w, err)
		return
	}
	gaps, err := h.series.Gaps(r.Context(), seriesID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]gapResponse, 0, len(gaps))
	for _, g := range gaps {
		resp = append(resp, toGapResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) allocateNumber(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	number, err := h.series.Allocate(r.Context(), req.DocumentType, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	writeJSON(w, http.StatusOK, allocateResponse{
		DocumentType: req.DocumentType,
		Code:         code,
		Number:       number,
		Formatted:    domain.FormatNumber(number),
		FullNumber:   code + "-" + domain.FormatNumber(number),
	})
}
