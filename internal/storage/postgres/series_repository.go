package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type seriesRepository struct {
	store *Store
}

// NewSeriesRepository создаёт PostgreSQL-реализацию SeriesRepository.
func NewSeriesRepository(store *Store) domain.SeriesRepository {
	return &seriesRepository{store: store}
}

const seriesColumns = `id, document_type, series_code, current_number, is_active, created_at, updated_at`

func scanSeries(row interface{ Scan(...any) error }) (domain.DocumentSeries, error) {
	var (
		s       domain.DocumentSeries
		docType string
	)
	if err := row.Scan(&s.ID, &docType, &s.Code, &s.CurrentNumber, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.DocumentSeries{}, err
	}
	s.DocumentType = domain.DocumentType(docType)
	return s, nil
}

func (r *seriesRepository) Create(ctx context.Context, series *domain.DocumentSeries) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO document_series (document_type, series_code, current_number, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		RETURNING id, created_at, updated_at
	`, string(series.DocumentType), series.Code, series.CurrentNumber, series.IsActive, now,
	).Scan(&series.ID, &series.CreatedAt, &series.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError(domain.ErrSeriesAlreadyExists, series.Key(), "")
		}
		return fmt.Errorf("insert document series: %w", err)
	}
	return nil
}

func (r *seriesRepository) Get(ctx context.Context, id int64) (domain.DocumentSeries, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s, err := scanSeries(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM document_series WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentSeries{}, domain.NotFoundError(domain.ErrSeriesNotFound, id)
		}
		return domain.DocumentSeries{}, fmt.Errorf("select document series: %w", err)
	}
	return s, nil
}

func (r *seriesRepository) GetByKey(ctx context.Context, key domain.SeriesKey) (domain.DocumentSeries, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s, err := scanSeries(r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM document_series WHERE document_type = $1 AND series_code = $2`,
		string(key.DocumentType), key.Code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentSeries{}, domain.NotFoundError(domain.ErrSeriesNotFound, key)
		}
		return domain.DocumentSeries{}, fmt.Errorf("select document series by key: %w", err)
	}
	return s, nil
}

func (r *seriesRepository) List(ctx context.Context) ([]domain.DocumentSeries, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `SELECT `+seriesColumns+` FROM document_series ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list document series: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DocumentSeries, 0)
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document series: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document series: %w", err)
	}
	return result, nil
}

// Allocate выполняет инкремент одним UPDATE: строка серии блокируется до конца
// этой автономной транзакции, поэтому номера выдаются без дублей и пропусков.
func (r *seriesRepository) Allocate(ctx context.Context, key domain.SeriesKey) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var number int64
	err := r.store.db.QueryRowContext(ctx, `
		UPDATE document_series
		SET current_number = current_number + 1,
		    updated_at = NOW()
		WHERE document_type = $1
		  AND series_code = $2
		  AND is_active
		  AND current_number < $3
		RETURNING current_number
	`, string(key.DocumentType), key.Code, domain.MaxDocumentNumber).Scan(&number)
	if err == nil {
		return number, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("allocate document number: %w", err)
	}

	// Ни одна строка не обновилась: выясняем причину для понятной ошибки.
	series, getErr := r.GetByKey(ctx, key)
	if getErr != nil {
		return 0, getErr
	}
	if !series.IsActive {
		return 0, domain.ConflictError(domain.ErrSeriesInactive, key, "")
	}
	return 0, domain.ConflictError(domain.ErrSeriesExhausted, key, "")
}

func (r *seriesRepository) SetCurrentNumber(ctx context.Context, id, number int64) (domain.DocumentSeries, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s, err := scanSeries(r.store.conn(ctx).QueryRowContext(ctx, `
		UPDATE document_series
		SET current_number = $2,
		    updated_at = NOW()
		WHERE id = $1 AND current_number <= $2
		RETURNING `+seriesColumns, id, number))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.DocumentSeries{}, fmt.Errorf("update document series number: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return domain.DocumentSeries{}, getErr
	}
	return current, domain.ConflictError(domain.ErrSeriesNumberRegression, id, "")
}

func (r *seriesRepository) ToggleActive(ctx context.Context, id int64) (domain.DocumentSeries, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s, err := scanSeries(r.store.conn(ctx).QueryRowContext(ctx, `
		UPDATE document_series
		SET is_active = NOT is_active,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+seriesColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentSeries{}, domain.NotFoundError(domain.ErrSeriesNotFound, id)
		}
		return domain.DocumentSeries{}, fmt.Errorf("toggle document series: %w", err)
	}
	return s, nil
}

func (r *seriesRepository) RecordGap(ctx context.Context, gap domain.NumberGap) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if gap.OccurredAt.IsZero() {
		gap.OccurredAt = time.Now().UTC()
	}
	_, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO document_number_gaps (series_id, document_type, series_code, number, reason, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, gap.SeriesID, string(gap.DocumentType), gap.SeriesCode, gap.Number, gap.Reason, gap.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert number gap: %w", err)
	}
	return nil
}

func (r *seriesRepository) ListGaps(ctx context.Context, seriesID int64) ([]domain.NumberGap, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, series_id, document_type, series_code, number, reason, occurred_at
		FROM document_number_gaps
		WHERE series_id = $1
		ORDER BY number, id
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list number gaps: %w", err)
	}
	defer rows.Close()

	result := make([]domain.NumberGap, 0)
	for rows.Next() {
		var (
			gap     domain.NumberGap
			docType string
		)
		if err := rows.Scan(&gap.ID, &gap.SeriesID, &docType, &gap.SeriesCode, &gap.Number, &gap.Reason, &gap.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan number gap: %w", err)
		}
		gap.DocumentType = domain.DocumentType(docType)
		result = append(result, gap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate number gaps: %w", err)
	}
	return result, nil
}

var _ domain.SeriesRepository = (*seriesRepository)(nil)
