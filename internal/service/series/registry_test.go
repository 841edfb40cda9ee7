package series

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
)

func newTestRegistry(t *testing.T) (*Registry, *memory.OutboxRepository) {
	t.Helper()
	outboxRepo := memory.NewOutboxRepository()
	return NewRegistry(memory.NewTransactor(), memory.NewSeriesRepository(), outboxRepo), outboxRepo
}

func int64Ptr(v int64) *int64 { return &v }

func TestRegistry_CreateValidatesAndNormalizes(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, err := registry.Create(ctx, CreateRequest{DocumentType: "RECEIPT", Code: "R001"})
	require.ErrorIs(t, err, domain.ErrDocumentTypeUnknown)

	_, err = registry.Create(ctx, CreateRequest{DocumentType: domain.DocumentTypeBill, Code: "  "})
	require.ErrorIs(t, err, domain.ErrSeriesCodeRequired)

	_, err = registry.Create(ctx, CreateRequest{
		DocumentType: domain.DocumentTypeBill, Code: "B001", StartingNumber: int64Ptr(domain.MaxDocumentNumber + 1),
	})
	require.ErrorIs(t, err, domain.ErrDocumentNumberInvalid)

	series, err := registry.Create(ctx, CreateRequest{DocumentType: "bill", Code: " b001 "})
	require.NoError(t, err)
	require.Equal(t, domain.DocumentTypeBill, series.DocumentType)
	require.Equal(t, "B001", series.Code)
	require.True(t, series.IsActive)
	require.Zero(t, series.CurrentNumber)

	_, err = registry.Create(ctx, CreateRequest{DocumentType: domain.DocumentTypeBill, Code: "B001"})
	require.ErrorIs(t, err, domain.ErrSeriesAlreadyExists)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestRegistry_AllocateContinuesFromCounter(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, err := registry.Create(ctx, CreateRequest{
		DocumentType: domain.DocumentTypeBill, Code: "B001", StartingNumber: int64Ptr(41),
	})
	require.NoError(t, err)

	first, err := registry.Allocate(ctx, domain.DocumentTypeBill, "B001")
	require.NoError(t, err)
	second, err := registry.Allocate(ctx, domain.DocumentTypeBill, "B001")
	require.NoError(t, err)

	require.EqualValues(t, 42, first)
	require.EqualValues(t, 43, second)
	require.Equal(t, "00000042", domain.FormatNumber(first))

	_, err = registry.Allocate(ctx, domain.DocumentTypeInvoice, "B001")
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

func TestRegistry_ConcurrentAllocateIsGapless(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, err := registry.Create(ctx, CreateRequest{DocumentType: domain.DocumentTypeInvoice, Code: "F001"})
	require.NoError(t, err)
	_, err = registry.Create(ctx, CreateRequest{DocumentType: domain.DocumentTypeInvoice, Code: "F002"})
	require.NoError(t, err)

	const workers = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			n, err := registry.Allocate(ctx, domain.DocumentTypeInvoice, "F001")
			if err != nil {
				t.Errorf("allocate F001: %v", err)
				return
			}
			mu.Lock()
			numbers = append(numbers, n)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			if _, err := registry.Allocate(ctx, domain.DocumentTypeInvoice, "F002"); err != nil {
				t.Errorf("allocate F002: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, numbers, workers)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		require.EqualValues(t, i+1, n)
	}
}

func TestRegistry_UpdateToggleAndGaps(t *testing.T) {
	ctx := context.Background()
	registry, outboxRepo := newTestRegistry(t)

	series, err := registry.Create(ctx, CreateRequest{DocumentType: domain.DocumentTypeBill, Code: "B002"})
	require.NoError(t, err)

	unchanged, err := registry.Update(ctx, series.ID, UpdateRequest{})
	require.NoError(t, err)
	require.Zero(t, unchanged.CurrentNumber)

	updated, err := registry.Update(ctx, series.ID, UpdateRequest{
		StartingNumber: int64Ptr(500), Actor: "ops", Reason: "migrated from legacy system",
	})
	require.NoError(t, err)
	require.EqualValues(t, 500, updated.CurrentNumber)

	pending := outboxRepo.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.AggregateSeries, pending[0].AggregateType)

	_, err = registry.Update(ctx, series.ID, UpdateRequest{StartingNumber: int64Ptr(499)})
	require.ErrorIs(t, err, domain.ErrSeriesNumberRegression)

	toggled, err := registry.ToggleActive(ctx, series.ID)
	require.NoError(t, err)
	require.False(t, toggled.IsActive)

	_, err = registry.Allocate(ctx, domain.DocumentTypeBill, "B002")
	require.ErrorIs(t, err, domain.ErrSeriesInactive)

	require.NoError(t, registry.RecordGap(ctx, domain.NumberGap{
		SeriesID: series.ID, DocumentType: series.DocumentType, SeriesCode: series.Code, Number: 501, Reason: "test",
	}))
	gaps, err := registry.Gaps(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.EqualValues(t, 501, gaps[0].Number)

	_, err = registry.Gaps(ctx, 999)
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)

	list, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRegistry_ExhaustedSeries(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, err := registry.Create(ctx, CreateRequest{
		DocumentType: domain.DocumentTypeCreditNote, Code: "NC01", StartingNumber: int64Ptr(domain.MaxDocumentNumber - 1),
	})
	require.NoError(t, err)

	last, err := registry.Allocate(ctx, domain.DocumentTypeCreditNote, "NC01")
	require.NoError(t, err)
	require.Equal(t, domain.MaxDocumentNumber, last)

	_, err = registry.Allocate(ctx, domain.DocumentTypeCreditNote, "NC01")
	require.ErrorIs(t, err, domain.ErrSeriesExhausted)
}
