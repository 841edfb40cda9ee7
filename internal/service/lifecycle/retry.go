package lifecycle

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// RetryConfig задаёт повторы единицы работы при конфликте версий заказа.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	return c
}

// backoff возвращает задержку перед попыткой attempt+1 (экспоненциально, с ограничением).
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return delay
}

// runUnit выполняет fn в транзакции. Конфликт версий перезапускает всю единицу
// работы на свежем состоянии: fn заново читает заказ и заново проверяет переход.
func (s *Service) runUnit(ctx context.Context, orderID int64, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		err = s.tx.WithinTx(ctx, fn)
		if err == nil || !domain.IsVersionConflict(err) || attempt == s.retry.MaxAttempts-1 {
			return err
		}

		s.metrics.RecordVersionRetry()
		delay := s.retry.backoff(attempt)
		s.logger.WithFields(log.Fields{
			"order_id":  orderID,
			"operation": operation,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).Warn("version conflict detected, retrying")

		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
