package idempotency

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
)

func TestGuard_ReplaysCompletedResponse(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	hash := HashRequest(http.MethodPost, "/api/v1/invoices", []byte(`{"order_id":1}`))

	replay, err := guard.Begin(ctx, "key-1", hash)
	require.NoError(t, err)
	require.Nil(t, replay)

	_, err = guard.Begin(ctx, "key-1", hash)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))

	guard.Complete(ctx, "key-1", http.StatusCreated, []byte(`{"id":1}`))

	replay, err = guard.Begin(ctx, "key-1", hash)
	require.NoError(t, err)
	require.NotNil(t, replay)
	require.Equal(t, http.StatusCreated, replay.HTTPStatus)
	require.JSONEq(t, `{"id":1}`, string(replay.Body))
}

func TestGuard_DifferentPayloadConflicts(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)

	_, err := guard.Begin(ctx, "key-2", HashRequest(http.MethodPost, "/api/v1/invoices", []byte(`{"order_id":1}`)))
	require.NoError(t, err)
	guard.Complete(ctx, "key-2", http.StatusConflict, []byte(`{"error":{}}`))

	_, err = guard.Begin(ctx, "key-2", HashRequest(http.MethodPost, "/api/v1/invoices", []byte(`{"order_id":2}`)))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	require.True(t, domain.IsIdempotencyConflict(err))
}

func TestGuard_ServerErrorReleasesKey(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	hash := HashRequest(http.MethodPost, "/api/v1/invoices", nil)

	_, err := guard.Begin(ctx, "key-3", hash)
	require.NoError(t, err)
	guard.Complete(ctx, "key-3", http.StatusServiceUnavailable, nil)

	replay, err := guard.Begin(ctx, "key-3", hash)
	require.NoError(t, err)
	require.Nil(t, replay)
}

func TestGuard_EmptyKey(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	_, err := guard.Begin(context.Background(), " ", "hash")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}
