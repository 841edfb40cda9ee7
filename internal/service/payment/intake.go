package payment

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
)

// Recorder - то, что нужно приёму оплат от журнала платежей.
type Recorder interface {
	Record(ctx context.Context, req RecordRequest) (Result, error)
}

// NewSettledHandler возвращает обработчик сообщений billing.payment.settled.
// Битые сообщения и отказы валидации не повторяются: они уходят в DLQ сразу.
func NewSettledHandler(recorder Recorder, logger *log.Entry) kafka.MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-intake")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParsePaymentSettledEvent(message)
		if err != nil {
			return kafka.Permanent(err)
		}

		result, err := recorder.Record(ctx, RecordRequest{
			OrderID:         event.OrderID,
			PaymentMethodID: event.PaymentMethodID,
			Amount:          event.Amount,
			TransactionID:   event.TransactionID,
			PaymentDate:     event.PaymentDate,
		})
		if err != nil {
			switch domain.KindOf(err) {
			case domain.KindValidation, domain.KindNotFound, domain.KindConflict:
				return kafka.Permanent(err)
			}
			return err
		}

		logger.WithFields(log.Fields{
			"order_id":       event.OrderID,
			"payment_id":     result.Payment.ID,
			"transaction_id": event.TransactionID,
			"duplicate":      result.Duplicate,
		}).Info("payment settled message applied")
		return nil
	}
}
