package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
)

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSeriesRepository_AllocateIsGapFreeUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeriesRepository()
	series := &domain.DocumentSeries{DocumentType: domain.DocumentTypeBill, Code: "B001", CurrentNumber: 0, IsActive: true}
	require.NoError(t, repo.Create(ctx, series))

	const workers = 50
	numbers := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Allocate(ctx, series.Key())
			require.NoError(t, err)
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool, workers)
	for n := range numbers {
		require.False(t, seen[n], "duplicate number %d", n)
		seen[n] = true
	}
	for n := int64(1); n <= workers; n++ {
		require.True(t, seen[n], "missing number %d", n)
	}

	stored, err := repo.Get(ctx, series.ID)
	require.NoError(t, err)
	require.Equal(t, int64(workers), stored.CurrentNumber)
}

func TestSeriesRepository_Guards(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeriesRepository()
	series := &domain.DocumentSeries{DocumentType: domain.DocumentTypeInvoice, Code: "F001", CurrentNumber: 42, IsActive: true}
	require.NoError(t, repo.Create(ctx, series))

	err := repo.Create(ctx, &domain.DocumentSeries{DocumentType: domain.DocumentTypeInvoice, Code: "F001"})
	require.ErrorIs(t, err, domain.ErrSeriesAlreadyExists)

	_, err = repo.SetCurrentNumber(ctx, series.ID, 41)
	require.ErrorIs(t, err, domain.ErrSeriesNumberRegression)

	updated, err := repo.SetCurrentNumber(ctx, series.ID, domain.MaxDocumentNumber)
	require.NoError(t, err)
	require.Equal(t, domain.MaxDocumentNumber, updated.CurrentNumber)

	_, err = repo.Allocate(ctx, series.Key())
	require.ErrorIs(t, err, domain.ErrSeriesExhausted)

	toggled, err := repo.ToggleActive(ctx, series.ID)
	require.NoError(t, err)
	require.False(t, toggled.IsActive)
	_, err = repo.Allocate(ctx, series.Key())
	require.ErrorIs(t, err, domain.ErrSeriesInactive)

	_, err = repo.Allocate(ctx, domain.SeriesKey{DocumentType: domain.DocumentTypeBill, Code: "NOPE"})
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

func TestSeriesRepository_Gaps(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeriesRepository()
	series := &domain.DocumentSeries{DocumentType: domain.DocumentTypeBill, Code: "B002", IsActive: true}
	require.NoError(t, repo.Create(ctx, series))

	require.NoError(t, repo.RecordGap(ctx, domain.NumberGap{SeriesID: series.ID, Number: 7, Reason: "persist failed"}))
	gaps, err := repo.ListGaps(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.Equal(t, int64(7), gaps[0].Number)
	require.False(t, gaps[0].OccurredAt.IsZero())
}

func TestInvoiceRepository_OneActivePerOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInvoiceRepository()
	now := time.Now().UTC()

	first := &domain.Invoice{OrderID: 1, SeriesID: 1, Number: "00000001", Status: domain.InvoiceStatusIssued, IssuedAt: now}
	require.NoError(t, repo.Create(ctx, first))

	second := &domain.Invoice{OrderID: 1, SeriesID: 1, Number: "00000002", Status: domain.InvoiceStatusIssued, IssuedAt: now}
	require.ErrorIs(t, repo.Create(ctx, second), domain.ErrOrderAlreadyInvoiced)

	dup := &domain.Invoice{OrderID: 2, SeriesID: 1, Number: "00000001", Status: domain.InvoiceStatusIssued, IssuedAt: now}
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrDuplicateDocumentNumber)

	_, err := repo.UpdateStatus(ctx, first.ID, domain.InvoiceStatusRejected, domain.InvoiceStatusCancelled, "", now)
	require.ErrorIs(t, err, domain.ErrInvoiceStatusConflict)

	cancelled, err := repo.UpdateStatus(ctx, first.ID, domain.InvoiceStatusIssued, domain.InvoiceStatusCancelled, "typo", now)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusCancelled, cancelled.Status)

	_, err = repo.GetActiveByOrder(ctx, 1)
	require.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	require.NoError(t, repo.Create(ctx, second))
}

func TestShipmentRepository_ActiveOutboundAndEvents(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewShipmentRepository()
	orderID := int64(10)
	now := time.Now().UTC()

	first := &domain.Shipment{OrderID: &orderID, Type: domain.ShipmentTypeOutbound, TrackingNumber: "TRK-1", Status: domain.ShipmentStatusPending}
	require.NoError(t, repo.Create(ctx, first))

	second := &domain.Shipment{OrderID: &orderID, Type: domain.ShipmentTypeOutbound, TrackingNumber: "TRK-2", Status: domain.ShipmentStatusPending}
	require.ErrorIs(t, repo.Create(ctx, second), domain.ErrActiveShipmentExists)

	inbound := &domain.Shipment{Type: domain.ShipmentTypeInbound, TrackingNumber: "TRK-1", Status: domain.ShipmentStatusPending}
	require.ErrorIs(t, repo.Create(ctx, inbound), domain.ErrDuplicateTrackingNumber)

	count, err := repo.CountActiveOutbound(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, repo.AppendEvent(ctx, &domain.TrackingEvent{ShipmentID: first.ID, EventDate: now, IsPublic: true}))
	require.NoError(t, repo.AppendEvent(ctx, &domain.TrackingEvent{ShipmentID: first.ID, EventDate: now}))
	err = repo.AppendEvent(ctx, &domain.TrackingEvent{ShipmentID: first.ID, EventDate: now.Add(-time.Minute)})
	require.ErrorIs(t, err, domain.ErrOutOfOrderEvent)

	public, err := repo.ListEvents(ctx, first.ID, true)
	require.NoError(t, err)
	require.Len(t, public, 1)

	moved, err := repo.UpdateStatus(ctx, first.ID, domain.ShipmentStatusPending, domain.ShipmentStatusInTransit, now)
	require.NoError(t, err)
	require.NotNil(t, moved.ShippedAt)
	require.ErrorIs(t, repo.Delete(ctx, first.ID), domain.ErrShipmentNotPending)
}

func TestPaymentRepository_DuplicateTransaction(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPaymentRepository()

	require.NoError(t, repo.Create(ctx, &domain.Payment{OrderID: 1, PaymentMethodID: 1, Amount: mustDecimal("100"), TransactionID: "tx-1"}))
	require.NoError(t, repo.Create(ctx, &domain.Payment{OrderID: 1, PaymentMethodID: 1, Amount: mustDecimal("18")}))
	err := repo.Create(ctx, &domain.Payment{OrderID: 1, PaymentMethodID: 1, Amount: mustDecimal("100"), TransactionID: "tx-1"})
	require.ErrorIs(t, err, domain.ErrDuplicatePaymentTransaction)

	sum, err := repo.SumByOrder(ctx, 1)
	require.NoError(t, err)
	require.True(t, sum.Equal(mustDecimal("118")), "sum=%s", sum)
}
