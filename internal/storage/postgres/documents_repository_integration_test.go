package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

func TestSeriesRepository_PostgresAllocateIsGapless(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewSeriesRepository(store)

	series := &domain.DocumentSeries{DocumentType: domain.DocumentTypeBill, Code: "B001", IsActive: true}
	require.NoError(t, repo.Create(ctx, series))

	dup := &domain.DocumentSeries{DocumentType: domain.DocumentTypeBill, Code: "B001", IsActive: true}
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrSeriesAlreadyExists)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[int64]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Allocate(ctx, series.Key())
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			mu.Lock()
			numbers[n] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, workers)
	for n := int64(1); n <= workers; n++ {
		require.Contains(t, numbers, n)
	}

	got, err := repo.Get(ctx, series.ID)
	require.NoError(t, err)
	require.EqualValues(t, workers, got.CurrentNumber)
}

func TestSeriesRepository_PostgresGuards(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewSeriesRepository(store)

	series := &domain.DocumentSeries{DocumentType: domain.DocumentTypeInvoice, Code: "F001", IsActive: true}
	require.NoError(t, repo.Create(ctx, series))

	_, err := repo.Allocate(ctx, domain.SeriesKey{DocumentType: domain.DocumentTypeInvoice, Code: "F999"})
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)

	updated, err := repo.SetCurrentNumber(ctx, series.ID, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, updated.CurrentNumber)

	_, err = repo.SetCurrentNumber(ctx, series.ID, 5)
	require.ErrorIs(t, err, domain.ErrSeriesNumberRegression)

	toggled, err := repo.ToggleActive(ctx, series.ID)
	require.NoError(t, err)
	require.False(t, toggled.IsActive)

	_, err = repo.Allocate(ctx, series.Key())
	require.ErrorIs(t, err, domain.ErrSeriesInactive)

	_, err = repo.ToggleActive(ctx, series.ID)
	require.NoError(t, err)
	_, err = repo.SetCurrentNumber(ctx, series.ID, domain.MaxDocumentNumber)
	require.NoError(t, err)

	_, err = repo.Allocate(ctx, series.Key())
	require.ErrorIs(t, err, domain.ErrSeriesExhausted)

	require.NoError(t, repo.RecordGap(ctx, domain.NumberGap{
		SeriesID:     series.ID,
		DocumentType: series.DocumentType,
		SeriesCode:   series.Code,
		Number:       7,
		Reason:       "insert failed",
	}))
	gaps, err := repo.ListGaps(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.EqualValues(t, 7, gaps[0].Number)
	require.False(t, gaps[0].OccurredAt.IsZero())
}

func TestInvoiceRepository_PostgresConstraints(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	seriesRepo := NewSeriesRepository(store)
	invoices := NewInvoiceRepository(store)

	order := sampleOrder("ORD-INV", time.Now().UTC())
	require.NoError(t, orders.Create(ctx, order))
	other := sampleOrder("ORD-INV-2", time.Now().UTC())
	require.NoError(t, orders.Create(ctx, other))

	series := &domain.DocumentSeries{DocumentType: domain.DocumentTypeBill, Code: "B001", IsActive: true}
	require.NoError(t, seriesRepo.Create(ctx, series))

	newInvoice := func(orderID int64, number string) *domain.Invoice {
		return &domain.Invoice{
			OrderID:       orderID,
			Type:          domain.InvoiceTypeBill,
			SeriesID:      series.ID,
			SeriesCode:    series.Code,
			Number:        number,
			ReceiverTaxID: "10456789012",
			ReceiverName:  "Ana Torres",
			Currency:      "PEN",
			Subtotal:      decimal.RequireFromString("100.00"),
			TaxAmount:     decimal.RequireFromString("18.00"),
			TotalAmount:   decimal.RequireFromString("118.00"),
			Status:        domain.InvoiceStatusIssued,
		}
	}

	first := newInvoice(order.ID, domain.FormatNumber(1))
	require.NoError(t, invoices.Create(ctx, first))
	require.NotZero(t, first.ID)

	err := invoices.Create(ctx, newInvoice(order.ID, domain.FormatNumber(2)))
	require.ErrorIs(t, err, domain.ErrOrderAlreadyInvoiced)

	err = invoices.Create(ctx, newInvoice(other.ID, domain.FormatNumber(1)))
	require.ErrorIs(t, err, domain.ErrDuplicateDocumentNumber)

	active, err := invoices.GetActiveByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
	require.True(t, active.TotalAmount.Equal(first.TotalAmount))

	now := time.Now().UTC()
	cancelled, err := invoices.UpdateStatus(ctx, first.ID, domain.InvoiceStatusIssued, domain.InvoiceStatusCancelled, "wrong tax id", now)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusCancelled, cancelled.Status)
	require.Equal(t, "wrong tax id", cancelled.StatusReason)

	_, err = invoices.UpdateStatus(ctx, first.ID, domain.InvoiceStatusIssued, domain.InvoiceStatusRejected, "", now)
	require.ErrorIs(t, err, domain.ErrInvoiceStatusConflict)

	_, err = invoices.GetActiveByOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	// Отменённый документ освобождает заказ для повторного выставления.
	require.NoError(t, invoices.Create(ctx, newInvoice(order.ID, domain.FormatNumber(3))))
}

func TestShipmentRepository_PostgresFlow(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	shipments := NewShipmentRepository(store)
	methods := NewShippingMethodRepository(store)

	order := sampleOrder("ORD-SHIP", time.Now().UTC())
	require.NoError(t, orders.Create(ctx, order))

	list, err := methods.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	orderID := order.ID
	newShipment := func(tracking string) *domain.Shipment {
		return &domain.Shipment{
			OrderID:          &orderID,
			Type:             domain.ShipmentTypeOutbound,
			TrackingNumber:   tracking,
			Status:           domain.ShipmentStatusPending,
			ShippingMethodID: list[0].ID,
			WeightKg:         decimal.RequireFromString("3.2"),
			ShippingCost:     list[0].QuoteCost(decimal.RequireFromString("3.2")),
			PackageQuantity:  1,
		}
	}

	shipment := newShipment("TRK-1")
	require.NoError(t, shipments.Create(ctx, shipment))

	require.ErrorIs(t, shipments.Create(ctx, newShipment("TRK-2")), domain.ErrActiveShipmentExists)

	count, err := shipments.CountActiveOutbound(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	inbound := newShipment("TRK-1")
	inbound.Type = domain.ShipmentTypeInbound
	inbound.OrderID = nil
	require.ErrorIs(t, shipments.Create(ctx, inbound), domain.ErrDuplicateTrackingNumber)

	base := time.Now().UTC().Round(time.Microsecond)
	require.NoError(t, shipments.AppendEvent(ctx, &domain.TrackingEvent{
		ShipmentID: shipment.ID, Status: domain.ShipmentStatusInTransit, Description: "picked up", EventDate: base, IsPublic: true,
	}))
	require.NoError(t, shipments.AppendEvent(ctx, &domain.TrackingEvent{
		ShipmentID: shipment.ID, Status: domain.ShipmentStatusInTransit, Description: "hub scan", EventDate: base,
	}))
	err = shipments.AppendEvent(ctx, &domain.TrackingEvent{
		ShipmentID: shipment.ID, Status: domain.ShipmentStatusInTransit, EventDate: base.Add(-time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrOutOfOrderEvent)

	events, err := shipments.ListEvents(ctx, shipment.ID, false)
	require.NoError(t, err)
	require.Len(t, events, 2)
	public, err := shipments.ListEvents(ctx, shipment.ID, true)
	require.NoError(t, err)
	require.Len(t, public, 1)

	moved, err := shipments.UpdateStatus(ctx, shipment.ID, domain.ShipmentStatusPending, domain.ShipmentStatusInTransit, base)
	require.NoError(t, err)
	require.Equal(t, domain.ShipmentStatusInTransit, moved.Status)
	require.NotNil(t, moved.ShippedAt)

	_, err = shipments.UpdateStatus(ctx, shipment.ID, domain.ShipmentStatusPending, domain.ShipmentStatusCancelled, base)
	require.ErrorIs(t, err, domain.ErrShipmentStatusConflict)

	require.ErrorIs(t, shipments.Delete(ctx, shipment.ID), domain.ErrShipmentNotPending)

	if _, err := shipments.Get(ctx, 404); !errors.Is(err, domain.ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound, got %v", err)
	}
}

func TestPaymentRepository_PostgresSumAndDuplicates(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	payments := NewPaymentRepository(store)

	order := sampleOrder("ORD-PAY", time.Now().UTC())
	require.NoError(t, orders.Create(ctx, order))

	sum, err := payments.SumByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, sum.IsZero())

	first := &domain.Payment{
		OrderID: order.ID, PaymentMethodID: 1, Amount: decimal.RequireFromString("60.00"),
		TransactionID: "txn-1", PaymentDate: time.Now().UTC(),
	}
	require.NoError(t, payments.Create(ctx, first))

	dup := *first
	dup.ID = 0
	require.ErrorIs(t, payments.Create(ctx, &dup), domain.ErrDuplicatePaymentTransaction)

	// Пустой transaction_id не участвует в уникальности.
	for i := 0; i < 2; i++ {
		require.NoError(t, payments.Create(ctx, &domain.Payment{
			OrderID: order.ID, PaymentMethodID: 2, Amount: decimal.RequireFromString("29.00"), PaymentDate: time.Now().UTC(),
		}))
	}

	sum, err = payments.SumByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.RequireFromString("118.00")), "sum=%s", sum)

	got, err := payments.GetByTransactionID(ctx, "txn-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	list, err := payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
}
