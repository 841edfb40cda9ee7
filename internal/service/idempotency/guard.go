package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// DefaultTTL - сколько хранится ответ на запрос с Idempotency-Key.
const DefaultTTL = 24 * time.Hour

// Replay - сохранённый ответ на повторный запрос.
type Replay struct {
	HTTPStatus int
	Body       []byte
}

// Guard ведёт ключи идемпотентности мутирующих запросов.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HashRequest считает хеш запроса по методу, пути и телу.
func HashRequest(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Begin занимает ключ. Если ключ уже завершён тем же запросом, возвращает сохранённый ответ.
// Другой payload под тем же ключом и параллельный дубликат дают конфликт.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*Replay, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return nil, domain.ValidationError(domain.ErrIdempotencyKeyRequired, "Idempotency-Key")
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, domain.ConflictError(domain.ErrIdempotencyHashMismatch, key,
			"idempotency key is already used with a different request payload")
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			return &Replay{HTTPStatus: record.HTTPStatus, Body: record.ResponseBody}, nil
		default:
			return nil, domain.ConflictError(domain.ErrIdempotencyKeyAlreadyExists, key,
				"request with the same idempotency key is already processing")
		}
	default:
		return nil, err
	}
}

// Complete сохраняет ответ. 2xx и 4xx повторяются как есть; 5xx освобождает ключ,
// чтобы клиент мог повторить запрос.
func (g *Guard) Complete(ctx context.Context, key string, httpStatus int, body []byte) {
	ctx = context.WithoutCancel(ctx)
	entry := g.logger.WithFields(log.Fields{"idempotency_key": key, "http_status": httpStatus})

	var err error
	switch {
	case httpStatus >= 500:
		err = g.repo.Delete(ctx, key)
	case httpStatus >= 400:
		err = g.repo.MarkFailed(ctx, key, body, httpStatus)
	default:
		err = g.repo.MarkDone(ctx, key, body, httpStatus)
	}
	if err != nil {
		entry.WithError(err).Warn("failed to store idempotent response")
	}
}
