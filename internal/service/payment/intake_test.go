package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
)

type recorderFunc func(ctx context.Context, req RecordRequest) (Result, error)

func (f recorderFunc) Record(ctx context.Context, req RecordRequest) (Result, error) {
	return f(ctx, req)
}

func settledMessage(orderID int64, amount, txn string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic: kafka.TopicPaymentSettled,
		Key:   []byte(fmt.Sprint(orderID)),
		Value: []byte(fmt.Sprintf(`{"order_id":%d,"payment_method_id":1,"amount":"%s","transaction_id":"%s","payment_date":"2026-03-01T12:00:00Z"}`, orderID, amount, txn)),
	}
}

func TestSettledHandler_RecordsPayment(t *testing.T) {
	ctx := context.Background()
	ledger, _, orderID := newTestLedger(t)
	handler := NewSettledHandler(ledger, nil)

	require.NoError(t, handler(ctx, settledMessage(orderID, "60.00", "txn-1")))
	// повторная доставка того же факта
	require.NoError(t, handler(ctx, settledMessage(orderID, "60.00", "txn-1")))

	payments, err := ledger.List(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "60.00", payments[0].Amount.StringFixed(2))
	require.Equal(t, 2026, payments[0].PaymentDate.Year())
}

func TestSettledHandler_PermanentFailures(t *testing.T) {
	ctx := context.Background()
	ledger, _, orderID := newTestLedger(t)
	handler := NewSettledHandler(ledger, nil)

	err := handler(ctx, &sarama.ConsumerMessage{Value: []byte("{broken")})
	require.ErrorIs(t, err, kafka.ErrPermanent)

	err = handler(ctx, settledMessage(orderID, "0", "txn-2"))
	require.ErrorIs(t, err, kafka.ErrPermanent)

	err = handler(ctx, settledMessage(404, "10.00", "txn-3"))
	require.ErrorIs(t, err, kafka.ErrPermanent)
}

func TestSettledHandler_TransientFailureIsRetryable(t *testing.T) {
	boom := errors.New("connection reset")
	handler := NewSettledHandler(recorderFunc(func(context.Context, RecordRequest) (Result, error) {
		return Result{}, boom
	}), nil)

	err := handler(context.Background(), settledMessage(1, "10.00", "txn-4"))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, kafka.ErrPermanent)
}
