package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/billing/internal/service/invoice"
	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/billing/internal/service/payment"
	"github.com/vladislavdragonenkov/billing/internal/service/series"
	"github.com/vladislavdragonenkov/billing/internal/service/shipment"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
)

type RouterSuite struct {
	suite.Suite

	store  *memory.Store
	server *httptest.Server
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.store = memory.NewStore()
	ledger := payment.NewLedger(s.store.Tx, s.store.Orders, s.store.Payments, s.store.Outbox)
	orders := lifecycle.NewService(lifecycle.Dependencies{
		Tx:        s.store.Tx,
		Orders:    s.store.Orders,
		Timeline:  s.store.Timeline,
		Shipments: s.store.Shipments,
		Payments:  ledger,
		Outbox:    s.store.Outbox,
	})
	registry := series.NewRegistry(s.store.Tx, s.store.Series, s.store.Outbox)

	s.server = httptest.NewServer(NewRouter(Dependencies{
		Orders:   orders,
		Payments: ledger,
		Invoices: invoice.NewIssuer(invoice.Dependencies{
			Tx:       s.store.Tx,
			Orders:   s.store.Orders,
			Invoices: s.store.Invoices,
			Series:   registry,
			Units:    orders,
			Outbox:   s.store.Outbox,
		}),
		Shipments: shipment.NewCoordinator(shipment.Dependencies{
			Tx:        s.store.Tx,
			Orders:    s.store.Orders,
			Shipments: s.store.Shipments,
			Methods:   s.store.ShippingMethods,
			Units:     orders,
			Outbox:    s.store.Outbox,
		}),
		Series: registry,
		Guard:  idempotency.NewGuard(s.store.Idempotency, 0, nil),
	}))
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(dst any) error {
	return json.Unmarshal(r.body, dst)
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) response {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return response{status: resp.StatusCode, header: resp.Header, body: raw}
}

func (s *RouterSuite) expectError(resp response, status int, kind domain.ErrorKind, code string) errorPayload {
	s.Require().Equal(status, resp.status, string(resp.body))
	var body errorBody
	s.Require().NoError(resp.decode(&body))
	s.Require().Equal(kind, body.Error.Kind)
	s.Require().Equal(code, body.Error.Code)
	return body.Error
}

func orderPayload(number string) map[string]any {
	return map[string]any{
		"orderNumber": number,
		"customerId":  "cust-1",
		"currency":    "PEN",
		"items": []map[string]any{
			{"variantId": "sku-1", "quantity": 2, "unitPrice": "50.00"},
		},
		"shippingAddress": map[string]any{"line1": "Av. Arequipa 100", "city": "Lima", "country": "PE"},
		"shippingCost":    "18.00",
	}
}

func (s *RouterSuite) createSeries(code string) seriesResponse {
	resp := s.do(http.MethodPost, "/api/v1/document-series", map[string]any{"documentType": "BILL", "code": code}, nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var out seriesResponse
	s.Require().NoError(resp.decode(&out))
	return out
}

func (s *RouterSuite) transition(orderID int64, status domain.OrderStatus) response {
	return s.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/transition", orderID), map[string]any{"status": status}, nil)
}

// paidOrder проводит заказ на 118.00 до PAID через API.
func (s *RouterSuite) paidOrder(number string) orderResponse {
	resp := s.do(http.MethodPost, "/api/v1/orders", orderPayload(number), nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var order orderResponse
	s.Require().NoError(resp.decode(&order))
	s.Require().Equal("118.00", order.Total)

	s.Require().Equal(http.StatusOK, s.transition(order.ID, domain.OrderStatusAwaitPayment).status)
	resp = s.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/payments", order.ID),
		map[string]any{"paymentMethodId": 1, "amount": "118.00", "transactionId": "txn-" + number}, nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))

	resp = s.transition(order.ID, domain.OrderStatusPaid)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))
	s.Require().NoError(resp.decode(&order))
	return order
}

func (s *RouterSuite) invoicePayload(orderID, seriesID int64, total string) map[string]any {
	return map[string]any{
		"orderId":       orderID,
		"invoiceType":   "BILL",
		"seriesId":      seriesID,
		"receiverTaxId": "20123456789",
		"receiverName":  "ACME S.A.C.",
		"subtotal":      "100.00",
		"taxAmount":     "18.00",
		"totalAmount":   total,
	}
}

func (s *RouterSuite) TestIssueInvoiceFlow() {
	b001 := s.createSeries("B001")
	order := s.paidOrder("ORD-1")

	resp := s.do(http.MethodPost, "/api/v1/invoices", s.invoicePayload(order.ID, b001.ID, "118.00"), map[string]string{HeaderActor: "accountant"})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var inv invoiceResponse
	s.Require().NoError(resp.decode(&inv))
	s.Equal("00000001", inv.Number)
	s.Equal("B001-00000001", inv.FullNumber)
	s.Equal(domain.InvoiceStatusIssued, inv.Status)

	resp = s.do(http.MethodPost, "/api/v1/invoices", s.invoicePayload(order.ID, b001.ID, "118.00"), nil)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "ORDER_ALREADY_INVOICED")

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/invoice", order.ID), nil, nil)
	s.Require().Equal(http.StatusOK, resp.status)

	resp = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/invoices/%d/status", inv.ID), map[string]any{"status": "CANCELLED", "reason": "wrong receiver"}, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodPost, "/api/v1/invoices", s.invoicePayload(order.ID, b001.ID, "118.00"), nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	s.Require().NoError(resp.decode(&inv))
	s.Equal("00000002", inv.Number)
}

func (s *RouterSuite) TestIssueInvoiceAmountMismatch() {
	b001 := s.createSeries("B001")
	order := s.paidOrder("ORD-2")

	resp := s.do(http.MethodPost, "/api/v1/invoices", s.invoicePayload(order.ID, b001.ID, "118.01"), nil)
	payload := s.expectError(resp, http.StatusBadRequest, domain.KindValidation, "AMOUNT_MISMATCH")
	s.False(payload.Retryable)

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/document-series/%d", b001.ID), nil, nil)
	var current seriesResponse
	s.Require().NoError(resp.decode(&current))
	s.Equal(int64(0), current.CurrentNumber)
	s.Equal("00000001", current.NextNumber)
}

func (s *RouterSuite) TestCreateOrderReportsAllViolations() {
	resp := s.do(http.MethodPost, "/api/v1/orders", map[string]any{"currency": "PEN"}, nil)
	payload := s.expectError(resp, http.StatusBadRequest, domain.KindValidation, "CUSTOMER_REQUIRED")
	s.GreaterOrEqual(len(payload.Details), 2)
}

func (s *RouterSuite) TestTransitionOutsideGraph() {
	resp := s.do(http.MethodPost, "/api/v1/orders", orderPayload("ORD-3"), nil)
	var order orderResponse
	s.Require().NoError(resp.decode(&order))

	resp = s.transition(order.ID, domain.OrderStatusShipped)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "INVALID_TRANSITION")

	s.Require().Equal(http.StatusOK, s.transition(order.ID, domain.OrderStatusAwaitPayment).status)
	resp = s.transition(order.ID, domain.OrderStatusPaid)
	payload := s.expectError(resp, http.StatusConflict, domain.KindConflict, "PRECONDITION_FAILED")
	s.NotEmpty(payload.Field)
}

func (s *RouterSuite) TestTimelineRecordsActor() {
	resp := s.do(http.MethodPost, "/api/v1/orders", orderPayload("ORD-4"), map[string]string{HeaderActor: "checkout"})
	var order orderResponse
	s.Require().NoError(resp.decode(&order))

	resp = s.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", order.ID), map[string]any{"reason": "customer request"}, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/timeline", order.ID), nil, nil)
	var timeline []transitionResponse
	s.Require().NoError(resp.decode(&timeline))
	s.Require().Len(timeline, 2)
	s.Equal("checkout", timeline[0].Actor)
	s.Equal(DefaultActor, timeline[1].Actor)
	s.Equal(domain.OrderStatusCancelled, timeline[1].To)
}

func (s *RouterSuite) TestShipmentFlow() {
	order := s.paidOrder("ORD-5")
	s.Require().Equal(http.StatusOK, s.transition(order.ID, domain.OrderStatusProcessing).status)

	shipmentPayload := map[string]any{
		"orderId":          order.ID,
		"shipmentType":     "OUTBOUND",
		"shippingMethodId": 1,
		"trackingNumber":   "TRK-1",
		"weightKg":         "2",
		"packageQuantity":  1,
	}
	resp := s.do(http.MethodPost, "/api/v1/shipments", shipmentPayload, nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var created shipmentResponse
	s.Require().NoError(resp.decode(&created))
	s.Equal("15.00", created.ShippingCost)

	shipmentPayload["trackingNumber"] = "TRK-2"
	resp = s.do(http.MethodPost, "/api/v1/shipments", shipmentPayload, nil)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "ACTIVE_SHIPMENT_EXISTS")

	resp = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/shipments/%d/mark-shipped", created.ID), map[string]any{"transitionOrder": true}, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))
	var shipped markShippedResponse
	s.Require().NoError(resp.decode(&shipped))
	s.Equal(domain.ShipmentStatusInTransit, shipped.Shipment.Status)
	s.Require().NotNil(shipped.Order)
	s.Equal(domain.OrderStatusShipped, shipped.Order.Status)

	resp = s.do(http.MethodPost, fmt.Sprintf("/api/v1/shipments/%d/tracking-events", created.ID), map[string]any{
		"status": "DELIVERED", "eventDate": "2026-01-05T10:00:00Z", "isPublic": true, "location": "Lima",
	}, nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/shipments/%d/tracking-events?public=true", created.ID), nil, nil)
	var events []trackingEventResponse
	s.Require().NoError(resp.decode(&events))
	s.Require().Len(events, 1)
	s.Equal("Lima", events[0].Location)

	resp = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/shipments/%d", created.ID), nil, nil)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "SHIPMENT_NOT_PENDING")

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/shipments", order.ID), nil, nil)
	var list []shipmentResponse
	s.Require().NoError(resp.decode(&list))
	s.Len(list, 1)
}

func (s *RouterSuite) TestDeletePendingShipment() {
	order := s.paidOrder("ORD-6")
	resp := s.do(http.MethodPost, "/api/v1/shipments", map[string]any{
		"orderId": order.ID, "shipmentType": "OUTBOUND", "shippingMethodId": 2,
		"trackingNumber": "TRK-6", "weightKg": "1", "packageQuantity": 1,
	}, nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var created shipmentResponse
	s.Require().NoError(resp.decode(&created))

	resp = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/shipments/%d", created.ID), nil, nil)
	s.Require().Equal(http.StatusNoContent, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/shipments/%d", created.ID), nil, nil)
	s.expectError(resp, http.StatusNotFound, domain.KindNotFound, "SHIPMENT_NOT_FOUND")
}

func (s *RouterSuite) TestSeriesAdministration() {
	b001 := s.createSeries("B001")

	resp := s.do(http.MethodPost, "/api/v1/document-series", map[string]any{"documentType": "BILL", "code": "B001"}, nil)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "SERIES_ALREADY_EXISTS")

	resp = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/document-series/%d", b001.ID), map[string]any{"startingNumber": 41, "reason": "migration"}, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	for _, want := range []int64{42, 43} {
		resp = s.do(http.MethodPost, "/internal/document-series/allocate", map[string]any{"documentType": "BILL", "code": "B001"}, nil)
		s.Require().Equal(http.StatusOK, resp.status, string(resp.body))
		var allocated allocateResponse
		s.Require().NoError(resp.decode(&allocated))
		s.Equal(want, allocated.Number)
		s.Equal(domain.FormatNumber(want), allocated.Formatted)
		s.Equal("B001-"+domain.FormatNumber(want), allocated.FullNumber)
	}

	resp = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/document-series/%d", b001.ID), map[string]any{"startingNumber": 10}, nil)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "SERIES_NUMBER_REGRESSION")

	resp = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/document-series/%d/toggle-active", b001.ID), nil, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))
	var toggled seriesResponse
	s.Require().NoError(resp.decode(&toggled))
	s.False(toggled.IsActive)

	resp = s.do(http.MethodPost, "/internal/document-series/allocate", map[string]any{"documentType": "BILL", "code": "B001"}, nil)
	s.expectError(resp, http.StatusConflict, domain.KindConflict, "SERIES_INACTIVE")

	resp = s.do(http.MethodGet, "/api/v1/document-series", nil, nil)
	var list []seriesResponse
	s.Require().NoError(resp.decode(&list))
	s.Len(list, 1)

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/document-series/%d/gaps", b001.ID), nil, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	s.JSONEq("[]", string(resp.body))
}

func (s *RouterSuite) TestPaymentsListAndDuplicate() {
	order := s.paidOrder("ORD-7")

	resp := s.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/payments", order.ID),
		map[string]any{"paymentMethodId": 1, "amount": "118.00", "transactionId": "txn-ORD-7"}, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))
	var dup paymentResponse
	s.Require().NoError(resp.decode(&dup))
	s.True(dup.Duplicate)

	resp = s.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/payments", order.ID), nil, nil)
	var list paymentsResponse
	s.Require().NoError(resp.decode(&list))
	s.Equal("118.00", list.TotalPaid)
	s.Len(list.Payments, 1)

	resp = s.do(http.MethodGet, "/api/v1/orders/999/payments", nil, nil)
	s.expectError(resp, http.StatusNotFound, domain.KindNotFound, "ORDER_NOT_FOUND")
}

func (s *RouterSuite) TestIdempotencyKey() {
	headers := map[string]string{HeaderIdempotencyKey: "key-1"}
	first := s.do(http.MethodPost, "/api/v1/orders", orderPayload("ORD-8"), headers)
	s.Require().Equal(http.StatusCreated, first.status, string(first.body))

	replayed := s.do(http.MethodPost, "/api/v1/orders", orderPayload("ORD-8"), headers)
	s.Require().Equal(http.StatusCreated, replayed.status)
	s.Equal("true", replayed.header.Get(HeaderIdempotentReplay))
	s.JSONEq(string(first.body), string(replayed.body))

	other := s.do(http.MethodPost, "/api/v1/orders", orderPayload("ORD-9"), headers)
	s.expectError(other, http.StatusConflict, domain.KindConflict, "IDEMPOTENCY_KEY_REUSED")

	// 4xx тоже сохраняется и повторяется.
	bad := map[string]string{HeaderIdempotencyKey: "key-2"}
	s.expectError(s.do(http.MethodPost, "/api/v1/orders", map[string]any{}, bad), http.StatusBadRequest, domain.KindValidation, "CUSTOMER_REQUIRED")
	again := s.do(http.MethodPost, "/api/v1/orders", map[string]any{}, bad)
	s.Equal(http.StatusBadRequest, again.status)
	s.Equal("true", again.header.Get(HeaderIdempotentReplay))
}

func (s *RouterSuite) TestRequestErrors() {
	resp := s.do(http.MethodGet, "/api/v1/orders/abc", nil, nil)
	payload := s.expectError(resp, http.StatusBadRequest, domain.KindValidation, "INVALID_PATH_ID")
	s.Equal("orderID", payload.Field)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/api/v1/orders", bytes.NewBufferString("{broken"))
	s.Require().NoError(err)
	raw, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	body, _ := io.ReadAll(raw.Body)
	raw.Body.Close()
	s.expectError(response{status: raw.StatusCode, body: body}, http.StatusBadRequest, domain.KindValidation, "INVALID_BODY")

	resp = s.do(http.MethodGet, "/api/v1/invoices/404", nil, nil)
	s.expectError(resp, http.StatusNotFound, domain.KindNotFound, "INVOICE_NOT_FOUND")
}

func TestNewErrorBody(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"consistency", domain.ConsistencyError(domain.ErrInvoicePersistFailed, "7", errors.New("disk full")), http.StatusServiceUnavailable, "INVOICE_PERSIST_FAILED", true},
		{"version conflict", fmt.Errorf("save: %w", domain.ErrOrderVersionConflict), http.StatusConflict, "VERSION_CONFLICT", true},
		{"not found", domain.NotFoundError(domain.ErrSeriesNotFound, 3), http.StatusNotFound, "SERIES_NOT_FOUND", false},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := newErrorBody(tc.err)
			if status != tc.status {
				t.Fatalf("status = %d, want %d", status, tc.status)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("code = %s, want %s", body.Error.Code, tc.code)
			}
			if body.Error.Retryable != tc.retryable {
				t.Fatalf("retryable = %v, want %v", body.Error.Retryable, tc.retryable)
			}
		})
	}

	_, body := newErrorBody(errors.New("secret dsn in message"))
	if body.Error.Message != "internal error" {
		t.Fatalf("internal error leaked message %q", body.Error.Message)
	}
}

type panickingSeries struct{ Series }

func (panickingSeries) List(context.Context) ([]domain.DocumentSeries, error) {
	panic("boom")
}

func TestRouterRecoversFromPanic(t *testing.T) {
	router := NewRouter(Dependencies{Series: panickingSeries{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/document-series", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
