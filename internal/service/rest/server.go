package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/billing/internal/service/invoice"
	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/billing/internal/service/payment"
	"github.com/vladislavdragonenkov/billing/internal/service/series"
	"github.com/vladislavdragonenkov/billing/internal/service/shipment"
)

// Orders - операции жизненного цикла заказа.
type Orders interface {
	Create(ctx context.Context, req lifecycle.CreateOrderRequest) (domain.Order, error)
	Get(ctx context.Context, orderID int64) (domain.Order, error)
	Timeline(ctx context.Context, orderID int64) ([]domain.TransitionRecord, error)
	Transition(ctx context.Context, req lifecycle.TransitionRequest) (domain.Order, error)
	Cancel(ctx context.Context, orderID int64, actor, reason string) (domain.Order, error)
}

// Payments - журнал платежей.
type Payments interface {
	Record(ctx context.Context, req payment.RecordRequest) (payment.Result, error)
	TotalPaid(ctx context.Context, orderID int64) (decimal.Decimal, error)
	List(ctx context.Context, orderID int64) ([]domain.Payment, error)
}

// Invoices - выдача документов.
type Invoices interface {
	Issue(ctx context.Context, req invoice.IssueRequest) (domain.Invoice, error)
	Get(ctx context.Context, invoiceID int64) (domain.Invoice, error)
	ActiveForOrder(ctx context.Context, orderID int64) (domain.Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID int64, status domain.InvoiceStatus, reason, actor string) (domain.Invoice, error)
}

// Shipments - координация отгрузок.
type Shipments interface {
	CreateForOrder(ctx context.Context, req shipment.CreateRequest) (domain.Shipment, error)
	Get(ctx context.Context, shipmentID int64) (domain.Shipment, error)
	ListForOrder(ctx context.Context, orderID int64) ([]domain.Shipment, error)
	MarkShipped(ctx context.Context, shipmentID int64, actor string) (domain.Shipment, error)
	MarkShippedAndTransition(ctx context.Context, shipmentID int64, actor, notes string) (domain.Shipment, domain.Order, error)
	Cancel(ctx context.Context, shipmentID int64, actor, reason string) (domain.Shipment, error)
	Delete(ctx context.Context, shipmentID int64, actor string) error
	RecordTrackingEvent(ctx context.Context, req shipment.TrackingEventRequest) (domain.TrackingEvent, error)
	ListEvents(ctx context.Context, shipmentID int64, publicOnly bool) ([]domain.TrackingEvent, error)
}

// Series - реестр серий документов.
type Series interface {
	Create(ctx context.Context, req series.CreateRequest) (domain.DocumentSeries, error)
	List(ctx context.Context) ([]domain.DocumentSeries, error)
	Get(ctx context.Context, id int64) (domain.DocumentSeries, error)
	Update(ctx context.Context, id int64, req series.UpdateRequest) (domain.DocumentSeries, error)
	ToggleActive(ctx context.Context, id int64) (domain.DocumentSeries, error)
	Gaps(ctx context.Context, id int64) ([]domain.NumberGap, error)
	Allocate(ctx context.Context, documentType domain.DocumentType, code string) (int64, error)
}

// Dependencies - сервисы, которые обслуживает REST API.
type Dependencies struct {
	Orders    Orders
	Payments  Payments
	Invoices  Invoices
	Shipments Shipments
	Series    Series
	Guard     *idempotency.Guard
	Logger    *log.Entry
	// AllowedOrigins - origin'ы бэкофиса для CORS; пусто означает «*».
	AllowedOrigins []string
}

// Handler держит зависимости HTTP-обработчиков.
type Handler struct {
	orders    Orders
	payments  Payments
	invoices  Invoices
	shipments Shipments
	series    Series
	guard     *idempotency.Guard
	logger    *log.Entry
}

// NewRouter собирает chi-router с маршрутами /api/v1 и служебной группой /internal.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	h := &Handler{
		orders:    deps.Orders,
		payments:  deps.Payments,
		invoices:  deps.Invoices,
		shipments: deps.Shipments,
		series:    deps.Series,
		guard:     deps.Guard,
		logger:    logger,
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderActor, HeaderIdempotencyKey},
		ExposedHeaders: []string{HeaderIdempotentReplay, middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(withActor)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.idempotent)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Get("/timeline", h.orderTimeline)
				r.Post("/transition", h.transitionOrder)
				r.Post("/cancel", h.cancelOrder)
				r.Post("/payments", h.recordPayment)
				r.Get("/payments", h.listPayments)
				r.Get("/invoice", h.activeInvoice)
				r.Get("/shipments", h.listOrderShipments)
			})
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.issueInvoice)
			r.Get("/{invoiceID}", h.getInvoice)
			r.Patch("/{invoiceID}/status", h.updateInvoiceStatus)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Post("/", h.createShipment)
			r.Route("/{shipmentID}", func(r chi.Router) {
				r.Get("/", h.getShipment)
				r.Delete("/", h.deleteShipment)
				r.Patch("/mark-shipped", h.markShipped)
				r.Post("/cancel", h.cancelShipment)
				r.Post("/tracking-events", h.recordTrackingEvent)
				r.Get("/tracking-events", h.listTrackingEvents)
			})
		})

		r.Route("/document-series", func(r chi.Router) {
			r.Post("/", h.createSeries)
			r.Get("/", h.listSeries)
			r.Route("/{seriesID}", func(r chi.Router) {
				r.Get("/", h.getSeries)
				r.Patch("/", h.updateSeries)
				r.Patch("/toggle-active", h.toggleSeries)
				r.Get("/gaps", h.seriesGaps)
			})
		})
	})

	// Служебные маршруты не публикуются наружу через gateway.
	r.Route("/internal", func(r chi.Router) {
		r.Post("/document-series/allocate", h.allocateNumber)
	})

	return r
}
