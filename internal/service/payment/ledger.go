package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/outbox"
)

// RecordRequest - факт поступившей оплаты.
type RecordRequest struct {
	OrderID         int64
	PaymentMethodID int64
	Amount          decimal.Decimal
	TransactionID   string
	PaymentDate     time.Time
}

// Result - сохранённый платёж и признак повторной доставки того же факта.
type Result struct {
	Payment   domain.Payment
	Duplicate bool
}

// Ledger записывает платежи и считает их сумму по заказу. Статус заказа не меняет.
type Ledger struct {
	tx       domain.Transactor
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	events   *outbox.Emitter
	logger   *log.Entry
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// NewLedger создаёт журнал платежей.
func NewLedger(
	tx domain.Transactor,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	outboxRepo domain.OutboxRepository,
	options ...Option,
) *Ledger {
	l := &Ledger{
		tx:       tx,
		orders:   orders,
		payments: payments,
		logger:   log.WithField("component", "payment-ledger"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(l)
	}
	l.events = outbox.NewEmitter(outboxRepo, l.metrics)
	return l
}

// Record сохраняет платёж. Повтор с тем же transaction_id возвращает уже сохранённый платёж.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (Result, error) {
	payment := domain.Payment{
		OrderID:         req.OrderID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          domain.RoundMoney(req.Amount),
		TransactionID:   strings.TrimSpace(req.TransactionID),
		PaymentDate:     req.PaymentDate,
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = l.now()
	}
	if err := domain.ValidationErrors(payment.Validate()); err != nil {
		return Result{}, err
	}

	if payment.TransactionID != "" {
		if existing, ok, err := l.lookupDuplicate(ctx, payment); err != nil || ok {
			return existing, err
		}
	}

	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := l.orders.Get(ctx, payment.OrderID); err != nil {
			return err
		}
		if err := l.payments.Create(ctx, &payment); err != nil {
			return err
		}
		return l.events.Emit(ctx, domain.AggregatePayment, payment.ID, kafka.EventTypePaymentRecorded,
			kafka.NewPaymentEvent(payment))
	})
	if err != nil {
		// Параллельная доставка того же факта проиграла гонку уникальному индексу.
		if errors.Is(err, domain.ErrDuplicatePaymentTransaction) {
			if existing, ok, lookupErr := l.lookupDuplicate(ctx, payment); lookupErr != nil || ok {
				return existing, lookupErr
			}
		}
		l.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("payment record failed")
		return Result{}, err
	}

	l.metrics.RecordPayment("recorded")
	l.logger.WithFields(log.Fields{
		"order_id":       payment.OrderID,
		"payment_id":     payment.ID,
		"amount":         payment.Amount.StringFixed(2),
		"transaction_id": payment.TransactionID,
	}).Info("payment recorded")
	return Result{Payment: payment}, nil
}

func (l *Ledger) lookupDuplicate(ctx context.Context, payment domain.Payment) (Result, bool, error) {
	existing, err := l.payments.GetByTransactionID(ctx, payment.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return Result{}, false, nil
		}
		return Result{}, false, err
	}
	if existing.OrderID != payment.OrderID {
		return Result{}, false, domain.ConflictError(domain.ErrDuplicatePaymentTransaction, payment.TransactionID,
			"transaction is already recorded for another order")
	}

	l.metrics.RecordPayment("duplicate")
	l.logger.WithFields(log.Fields{
		"order_id":       payment.OrderID,
		"payment_id":     existing.ID,
		"transaction_id": payment.TransactionID,
	}).Info("duplicate payment ignored")
	return Result{Payment: existing, Duplicate: true}, true, nil
}

// TotalPaid возвращает сумму платежей по заказу.
func (l *Ledger) TotalPaid(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	return l.payments.SumByOrder(ctx, orderID)
}

// List возвращает платежи заказа.
func (l *Ledger) List(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	if _, err := l.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return l.payments.ListByOrder(ctx, orderID)
}
