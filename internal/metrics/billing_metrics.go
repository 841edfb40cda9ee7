package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics содержит метрики жизненного цикла заказа и выдачи документов.
type BillingMetrics struct {
	// Переходы статусов заказа
	transitions       *prometheus.CounterVec
	transitionRejects *prometheus.CounterVec
	versionRetries    prometheus.Counter

	// Нумерация документов
	allocations       *prometheus.CounterVec
	allocateDuration  *prometheus.HistogramVec
	numberGaps        *prometheus.CounterVec
	seriesAdjustments prometheus.Counter

	// Документы, отгрузки, платежи
	invoicesIssued *prometheus.CounterVec
	shipments      *prometheus.CounterVec
	trackingEvents prometheus.Counter
	paymentsTotal  *prometheus.CounterVec

	outboxEvents      prometheus.Counter
	operationDuration *prometheus.HistogramVec

	// Публикация outbox
	outboxPublishAttempts *prometheus.CounterVec
	outboxPending         prometheus.Gauge
	outboxOldestAge       prometheus.Gauge

	// Приём платежей из Kafka
	intakeMessages *prometheus.CounterVec

	// Очистка ключей идемпотентности
	idempotencyCleanupRuns    *prometheus.CounterVec
	idempotencyCleanupDeleted prometheus.Counter
}

// NewBillingMetrics регистрирует метрики в глобальном реестре.
func NewBillingMetrics() *BillingMetrics {
	return NewBillingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBillingMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewBillingMetricsWithRegisterer(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BillingMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_order_transitions_total",
			Help: "Total number of committed order status transitions",
		}, []string{"from", "to"}),
		transitionRejects: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_order_transition_rejections_total",
			Help: "Total number of rejected order transitions grouped by error code",
		}, []string{"reason"}),
		versionRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_order_version_retries_total",
			Help: "Total number of re-runs caused by optimistic version conflicts",
		}),
		allocations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_document_numbers_allocated_total",
			Help: "Total number of allocated document numbers",
		}, []string{"document_type", "series"}),
		allocateDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "billing_document_allocate_duration_seconds",
			Help:    "Duration of document number allocation in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"document_type"}),
		numberGaps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_document_number_gaps_total",
			Help: "Total number of allocated numbers without a persisted document",
		}, []string{"document_type", "series"}),
		seriesAdjustments: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_document_series_adjustments_total",
			Help: "Total number of manual document series counter corrections",
		}),
		invoicesIssued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_invoices_issued_total",
			Help: "Total number of issued invoices",
		}, []string{"invoice_type"}),
		shipments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_shipments_total",
			Help: "Total number of shipment operations grouped by action",
		}, []string{"action"}),
		trackingEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_tracking_events_total",
			Help: "Total number of appended tracking events",
		}),
		paymentsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_payments_recorded_total",
			Help: "Total number of payment facts grouped by result",
		}, []string{"result"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_outbox_events_total",
			Help: "Total number of domain events enqueued to the outbox",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "billing_operation_duration_seconds",
			Help:    "Duration of billing operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "billing_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "billing_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		intakeMessages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_payment_intake_messages_total",
			Help: "Total number of consumed payment-settled messages grouped by result",
		}, []string{"result"}),
		idempotencyCleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "billing_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result",
		}, []string{"result"}),
		idempotencyCleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records",
		}),
	}
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// Все Record-методы безопасны для nil-получателя: сервисы в тестах работают без метрик.

// RecordTransition учитывает зафиксированный переход статуса.
func (m *BillingMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionRejected учитывает отклонённый переход.
func (m *BillingMetrics) RecordTransitionRejected(reason string) {
	if m == nil {
		return
	}
	m.transitionRejects.WithLabelValues(reason).Inc()
}

// RecordVersionRetry учитывает повтор после конфликта версий.
func (m *BillingMetrics) RecordVersionRetry() {
	if m == nil {
		return
	}
	m.versionRetries.Inc()
}

// RecordAllocation учитывает выданный номер и время выдачи.
func (m *BillingMetrics) RecordAllocation(documentType, series string, duration time.Duration) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(documentType, series).Inc()
	m.allocateDuration.WithLabelValues(documentType).Observe(duration.Seconds())
}

// RecordNumberGap учитывает номер, за которым не стоит документ.
func (m *BillingMetrics) RecordNumberGap(documentType, series string) {
	if m == nil {
		return
	}
	m.numberGaps.WithLabelValues(documentType, series).Inc()
}

// RecordSeriesAdjustment учитывает ручную корректировку счётчика.
func (m *BillingMetrics) RecordSeriesAdjustment() {
	if m == nil {
		return
	}
	m.seriesAdjustments.Inc()
}

// RecordInvoiceIssued учитывает выданный документ.
func (m *BillingMetrics) RecordInvoiceIssued(invoiceType string) {
	if m == nil {
		return
	}
	m.invoicesIssued.WithLabelValues(invoiceType).Inc()
}

// RecordShipment учитывает операцию над отгрузкой (created, shipped, cancelled, deleted).
func (m *BillingMetrics) RecordShipment(action string) {
	if m == nil {
		return
	}
	m.shipments.WithLabelValues(action).Inc()
}

// RecordTrackingEvent увеличивает счётчик событий трекинга.
func (m *BillingMetrics) RecordTrackingEvent() {
	if m == nil {
		return
	}
	m.trackingEvents.Inc()
}

// RecordPayment учитывает платёж: recorded или duplicate.
func (m *BillingMetrics) RecordPayment(result string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(result).Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *BillingMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// ObserveOperation записывает длительность операции.
func (m *BillingMetrics) ObserveOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOutboxPublish учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *BillingMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog выставляет размер backlog и возраст самой старой записи.
func (m *BillingMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// RecordIntakeMessage учитывает исход обработки входящего сообщения: processed, retried, dlq, failed.
func (m *BillingMetrics) RecordIntakeMessage(result string) {
	if m == nil {
		return
	}
	m.intakeMessages.WithLabelValues(result).Inc()
}

// RecordIdempotencyCleanup учитывает прогон очистки и число удалённых ключей.
func (m *BillingMetrics) RecordIdempotencyCleanup(result string, deleted int) {
	if m == nil {
		return
	}
	m.idempotencyCleanupRuns.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.idempotencyCleanupDeleted.Add(float64(deleted))
	}
}
