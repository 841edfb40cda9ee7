package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/billing/internal/service/outbox"
)

// Numbering - выдача номеров и учёт пропусков (реестр серий).
type Numbering interface {
	Get(ctx context.Context, id int64) (domain.DocumentSeries, error)
	Allocate(ctx context.Context, documentType domain.DocumentType, code string) (int64, error)
	RecordGap(ctx context.Context, gap domain.NumberGap) error
}

// OrderUnits сериализует работу над заказом (жизненный цикл заказа).
type OrderUnits interface {
	Touch(ctx context.Context, orderID int64, fn lifecycle.UnitFunc) (domain.Order, error)
}

// Dependencies - хранилища и коллабораторы выдачи документов.
type Dependencies struct {
	Tx       domain.Transactor
	Orders   domain.OrderRepository
	Invoices domain.InvoiceRepository
	Series   Numbering
	Units    OrderUnits
	Outbox   domain.OutboxRepository
}

// Issuer выдаёт налоговые документы по заказам.
type Issuer struct {
	tx       domain.Transactor
	orders   domain.OrderRepository
	invoices domain.InvoiceRepository
	series   Numbering
	units    OrderUnits
	events   *outbox.Emitter
	logger   *log.Entry
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

// Option настраивает Issuer.
type Option func(*Issuer)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer создаёт Issuer.
func NewIssuer(deps Dependencies, options ...Option) *Issuer {
	i := &Issuer{
		tx:       deps.Tx,
		orders:   deps.Orders,
		invoices: deps.Invoices,
		series:   deps.Series,
		units:    deps.Units,
		logger:   log.WithField("component", "invoice-issuer"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(i)
	}
	i.events = outbox.NewEmitter(deps.Outbox, i.metrics)
	return i
}

// IssueRequest - запрос на выдачу документа по заказу.
type IssueRequest struct {
	OrderID       int64
	InvoiceType   domain.InvoiceType
	SeriesID      int64
	ReceiverTaxID string
	ReceiverName  string
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	IssuedAt      *time.Time
	Actor         string
}

func (r IssueRequest) validate() (domain.DocumentType, error) {
	if r.OrderID <= 0 {
		return "", domain.ValidationError(domain.ErrOrderIDRequired, "order_id")
	}
	docType, ok := r.InvoiceType.DocumentType()
	if !ok {
		return "", domain.ValidationError(domain.ErrInvoiceTypeUnknown, "invoice_type")
	}
	if strings.TrimSpace(r.ReceiverTaxID) == "" {
		return "", domain.ValidationError(domain.ErrReceiverTaxIDRequired, "receiver_tax_id")
	}
	if strings.TrimSpace(r.ReceiverName) == "" {
		return "", domain.ValidationError(domain.ErrReceiverNameRequired, "receiver_name")
	}
	if err := domain.CheckAmounts(r.Subtotal, r.TaxAmount, r.TotalAmount); err != nil {
		return "", err
	}
	return docType, nil
}

// Issue выдаёт документ. Номер выделяется ровно один раз и только после всех проверок;
// если документ затем не сохранён, номер записывается в журнал пропусков.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (domain.Invoice, error) {
	start := time.Now()
	defer func() { i.metrics.ObserveOperation("invoice.issue", time.Since(start)) }()

	docType, err := req.validate()
	if err != nil {
		return domain.Invoice{}, err
	}
	// Сверка идёт по исходным суммам, хранятся округлённые.
	req.Subtotal = domain.RoundMoney(req.Subtotal)
	req.TaxAmount = domain.RoundMoney(req.TaxAmount)
	req.TotalAmount = domain.RoundMoney(req.TotalAmount)

	order, err := i.orders.Get(ctx, req.OrderID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := checkEligible(order); err != nil {
		return domain.Invoice{}, err
	}
	if err := i.ensureNotInvoiced(ctx, order.ID); err != nil {
		return domain.Invoice{}, err
	}

	series, err := i.series.Get(ctx, req.SeriesID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if series.DocumentType != docType {
		return domain.Invoice{}, domain.ConflictError(domain.ErrSeriesTypeMismatch, series.ID,
			fmt.Sprintf("series %s numbers %s documents", series.Code, series.DocumentType))
	}
	if !series.IsActive {
		return domain.Invoice{}, domain.ConflictError(domain.ErrSeriesInactive, series.Key(), "")
	}

	issuedAt := i.now()
	if req.IssuedAt != nil && !req.IssuedAt.IsZero() {
		issuedAt = req.IssuedAt.UTC()
	}

	// Номер выделяется под блокировкой заказа: дубликаты запроса упираются
	// в OrderAlreadyInvoiced раньше, чем тронут счётчик серии.
	// Счётчик фиксируется сам по себе и не откатывается вместе с транзакцией,
	// поэтому при повторе единицы работы номер берётся прежний.
	var (
		invoice   domain.Invoice
		number    int64
		allocated bool
	)
	_, err = i.units.Touch(ctx, order.ID, func(ctx context.Context, fresh domain.Order) error {
		if err := checkEligible(fresh); err != nil {
			return err
		}
		if err := i.ensureNotInvoiced(ctx, fresh.ID); err != nil {
			return err
		}
		if !allocated {
			n, err := i.series.Allocate(ctx, series.DocumentType, series.Code)
			if err != nil {
				return err
			}
			number, allocated = n, true
		}

		invoice = domain.Invoice{
			OrderID:       fresh.ID,
			Type:          req.InvoiceType,
			SeriesID:      series.ID,
			SeriesCode:    series.Code,
			Number:        domain.FormatNumber(number),
			ReceiverTaxID: strings.TrimSpace(req.ReceiverTaxID),
			ReceiverName:  strings.TrimSpace(req.ReceiverName),
			Currency:      fresh.Currency,
			Subtotal:      req.Subtotal,
			TaxAmount:     req.TaxAmount,
			TotalAmount:   req.TotalAmount,
			Status:        domain.InvoiceStatusIssued,
			IssuedAt:      issuedAt,
			UpdatedAt:     issuedAt,
		}
		if err := i.invoices.Create(ctx, &invoice); err != nil {
			return err
		}
		return i.events.Emit(ctx, domain.AggregateInvoice, invoice.ID, kafka.EventTypeInvoiceIssued,
			kafka.NewInvoiceEvent(kafka.EventTypeInvoiceIssued, invoice, req.Actor))
	})
	if err != nil {
		if !allocated {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, i.persistFailed(ctx, series, number, order.ID, err)
	}

	i.metrics.RecordInvoiceIssued(string(invoice.Type))
	i.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"invoice_id": invoice.ID,
		"series":     series.Key().String(),
		"number":     invoice.Number,
	}).Info("invoice issued")
	return invoice, nil
}

// persistFailed записывает пропуск номера и классифицирует причину.
func (i *Issuer) persistFailed(ctx context.Context, series domain.DocumentSeries, number, orderID int64, cause error) error {
	gap := domain.NumberGap{
		SeriesID:     series.ID,
		DocumentType: series.DocumentType,
		SeriesCode:   series.Code,
		Number:       number,
		Reason:       cause.Error(),
		OccurredAt:   i.now(),
	}
	// Пропуск фиксируется и при отменённом контексте запроса.
	if err := i.series.RecordGap(context.WithoutCancel(ctx), gap); err != nil {
		i.logger.WithError(err).WithFields(log.Fields{
			"series": series.Key().String(),
			"number": number,
		}).Error("failed to record document number gap")
	}

	switch domain.KindOf(cause) {
	case domain.KindConflict, domain.KindValidation, domain.KindNotFound:
		return cause
	}
	i.logger.WithError(cause).WithFields(log.Fields{
		"order_id": orderID,
		"series":   series.Key().String(),
		"number":   number,
	}).Error("invoice persistence failed after number allocation")
	return domain.ConsistencyError(domain.ErrInvoicePersistFailed, fmt.Sprint(orderID), cause)
}

func (i *Issuer) ensureNotInvoiced(ctx context.Context, orderID int64) error {
	active, err := i.invoices.GetActiveByOrder(ctx, orderID)
	switch {
	case err == nil:
		return domain.ConflictError(domain.ErrOrderAlreadyInvoiced, orderID,
			fmt.Sprintf("invoice %s-%s is %s", active.SeriesCode, active.Number, active.Status))
	case errors.Is(err, domain.ErrInvoiceNotFound):
		return nil
	default:
		return err
	}
}

func checkEligible(order domain.Order) error {
	if !order.Status.IsInvoiceable() {
		return domain.ConflictError(domain.ErrOrderNotEligible, order.ID, fmt.Sprintf("order is %s", order.Status))
	}
	return nil
}

// UpdateStatus переводит документ из ISSUED в CANCELLED или REJECTED. Номер и серия не меняются.
func (i *Issuer) UpdateStatus(ctx context.Context, invoiceID int64, status domain.InvoiceStatus, reason, actor string) (domain.Invoice, error) {
	if !status.Valid() {
		return domain.Invoice{}, domain.ValidationError(domain.ErrStatusUnknown, "status")
	}

	var updated domain.Invoice
	err := i.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := i.invoices.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(status) {
			return domain.ConflictError(domain.ErrInvalidInvoiceStatus, invoiceID,
				fmt.Sprintf("cannot move invoice from %s to %s", current.Status, status))
		}
		updated, err = i.invoices.UpdateStatus(ctx, invoiceID, current.Status, status, strings.TrimSpace(reason), i.now())
		if err != nil {
			return err
		}
		return i.events.Emit(ctx, domain.AggregateInvoice, updated.ID, kafka.EventTypeInvoiceStatusChanged,
			kafka.NewInvoiceEvent(kafka.EventTypeInvoiceStatusChanged, updated, actor))
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	i.logger.WithFields(log.Fields{
		"invoice_id": updated.ID,
		"order_id":   updated.OrderID,
		"status":     updated.Status,
		"actor":      actor,
	}).Info("invoice status changed")
	return updated, nil
}

// Get возвращает документ.
func (i *Issuer) Get(ctx context.Context, invoiceID int64) (domain.Invoice, error) {
	return i.invoices.Get(ctx, invoiceID)
}

// ActiveForOrder возвращает неотменённый документ заказа.
func (i *Issuer) ActiveForOrder(ctx context.Context, orderID int64) (domain.Invoice, error) {
	return i.invoices.GetActiveByOrder(ctx, orderID)
}
