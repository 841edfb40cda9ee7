package series

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/outbox"
)

// Registry ведёт серии документов и единолично выдаёт номера.
type Registry struct {
	tx      domain.Transactor
	repo    domain.SeriesRepository
	events  *outbox.Emitter
	logger  *log.Entry
	metrics *metrics.BillingMetrics
}

// Option настраивает Registry.
type Option func(*Registry)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry создаёт реестр серий.
func NewRegistry(tx domain.Transactor, repo domain.SeriesRepository, outboxRepo domain.OutboxRepository, options ...Option) *Registry {
	r := &Registry{
		tx:     tx,
		repo:   repo,
		logger: log.WithField("component", "document-series"),
	}
	for _, option := range options {
		option(r)
	}
	r.events = outbox.NewEmitter(outboxRepo, r.metrics)
	return r
}

// CreateRequest - новая серия. StartingNumber - значение счётчика, следующий номер будет на 1 больше.
type CreateRequest struct {
	DocumentType   domain.DocumentType
	Code           string
	StartingNumber *int64
}

// UpdateRequest - ручная корректировка счётчика серии.
type UpdateRequest struct {
	StartingNumber *int64
	Actor          string
	Reason         string
}

// Create регистрирует серию в активном состоянии.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (domain.DocumentSeries, error) {
	key, err := normalizeKey(req.DocumentType, req.Code)
	if err != nil {
		return domain.DocumentSeries{}, err
	}
	series := domain.DocumentSeries{
		DocumentType: key.DocumentType,
		Code:         key.Code,
		IsActive:     true,
	}
	if req.StartingNumber != nil {
		if err := validateCounter(*req.StartingNumber); err != nil {
			return domain.DocumentSeries{}, err
		}
		series.CurrentNumber = *req.StartingNumber
	}

	if err := r.repo.Create(ctx, &series); err != nil {
		return domain.DocumentSeries{}, err
	}
	r.logger.WithFields(log.Fields{
		"series":         key.String(),
		"current_number": series.CurrentNumber,
	}).Info("document series created")
	return series, nil
}

// Allocate выдаёт следующий номер серии. Номер фиксируется сразу и никогда не возвращается.
func (r *Registry) Allocate(ctx context.Context, documentType domain.DocumentType, code string) (int64, error) {
	key, err := normalizeKey(documentType, code)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	number, err := r.repo.Allocate(ctx, key)
	if err != nil {
		r.logger.WithError(err).WithField("series", key.String()).Warn("document number allocation failed")
		return 0, err
	}
	r.metrics.RecordAllocation(string(key.DocumentType), key.Code, time.Since(start))
	r.logger.WithFields(log.Fields{
		"series": key.String(),
		"number": number,
	}).Debug("document number allocated")
	return number, nil
}

// Update корректирует счётчик серии. Уменьшать счётчик нельзя.
func (r *Registry) Update(ctx context.Context, id int64, req UpdateRequest) (domain.DocumentSeries, error) {
	if req.StartingNumber == nil {
		return r.repo.Get(ctx, id)
	}
	if err := validateCounter(*req.StartingNumber); err != nil {
		return domain.DocumentSeries{}, err
	}

	var previous, updated domain.DocumentSeries
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		previous, err = r.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		updated, err = r.repo.SetCurrentNumber(ctx, id, *req.StartingNumber)
		if err != nil {
			return err
		}
		return r.events.Emit(ctx, domain.AggregateSeries, id, kafka.EventTypeSeriesAdjusted, &kafka.SeriesEvent{
			EventType:    kafka.EventTypeSeriesAdjusted,
			SeriesID:     id,
			DocumentType: updated.DocumentType,
			SeriesCode:   updated.Code,
			Previous:     previous.CurrentNumber,
			Current:      updated.CurrentNumber,
			Actor:        req.Actor,
			Reason:       req.Reason,
			Timestamp:    time.Now().UTC(),
		})
	})
	if err != nil {
		return domain.DocumentSeries{}, err
	}

	if previous.CurrentNumber != updated.CurrentNumber {
		r.metrics.RecordSeriesAdjustment()
		r.logger.WithFields(log.Fields{
			"series":   updated.Key().String(),
			"previous": previous.CurrentNumber,
			"current":  updated.CurrentNumber,
			"actor":    req.Actor,
			"reason":   req.Reason,
		}).Warn("document series counter adjusted manually")
	}
	return updated, nil
}

// ToggleActive включает или выключает выдачу номеров серией.
func (r *Registry) ToggleActive(ctx context.Context, id int64) (domain.DocumentSeries, error) {
	series, err := r.repo.ToggleActive(ctx, id)
	if err != nil {
		return domain.DocumentSeries{}, err
	}
	r.logger.WithFields(log.Fields{
		"series":    series.Key().String(),
		"is_active": series.IsActive,
	}).Info("document series toggled")
	return series, nil
}

// Get возвращает серию по идентификатору.
func (r *Registry) Get(ctx context.Context, id int64) (domain.DocumentSeries, error) {
	return r.repo.Get(ctx, id)
}

// List возвращает все серии.
func (r *Registry) List(ctx context.Context) ([]domain.DocumentSeries, error) {
	return r.repo.List(ctx)
}

// Gaps возвращает номера серии, за которыми не стоит сохранённый документ.
func (r *Registry) Gaps(ctx context.Context, id int64) ([]domain.NumberGap, error) {
	if _, err := r.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.repo.ListGaps(ctx, id)
}

// RecordGap фиксирует выданный, но не использованный номер.
func (r *Registry) RecordGap(ctx context.Context, gap domain.NumberGap) error {
	if err := r.repo.RecordGap(ctx, gap); err != nil {
		return err
	}
	r.metrics.RecordNumberGap(string(gap.DocumentType), gap.SeriesCode)
	r.logger.WithFields(log.Fields{
		"series": domain.SeriesKey{DocumentType: gap.DocumentType, Code: gap.SeriesCode}.String(),
		"number": gap.Number,
		"reason": gap.Reason,
	}).Warn("document number gap recorded")
	return nil
}

func normalizeKey(documentType domain.DocumentType, code string) (domain.SeriesKey, error) {
	documentType = domain.DocumentType(strings.ToUpper(strings.TrimSpace(string(documentType))))
	if !documentType.Valid() {
		return domain.SeriesKey{}, domain.ValidationError(domain.ErrDocumentTypeUnknown, "document_type")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.SeriesKey{}, domain.ValidationError(domain.ErrSeriesCodeRequired, "series_code")
	}
	return domain.SeriesKey{DocumentType: documentType, Code: code}, nil
}

func validateCounter(n int64) error {
	if n < 0 || n > domain.MaxDocumentNumber {
		return domain.ValidationError(domain.ErrDocumentNumberInvalid, "starting_number")
	}
	return nil
}
