// Package repotest holds behaviour checks shared by every SessionRepository implementation.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipeless/payment-relay/internal/domain"
)

// NewRecord builds a record that stays live for an hour
func NewRecord(ref, handle string) *domain.SessionRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.SessionRecord{
		TransactionReference: ref,
		SessionHandle:        handle,
		CreatedAt:            now,
		ExpiresAt:            now.Add(time.Hour),
	}
}

// Run exercises repo against the SessionRepository contract.
// newRepo must return an empty repository for every call.
func Run(t *testing.T, newRepo func(t *testing.T) domain.SessionRepository) {
	t.Run("PutThenGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Put(ctx, NewRecord("T2", "S2")))

		got, err := repo.Get(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, "T1", got.TransactionReference)
		assert.Equal(t, "S1", got.SessionHandle)
		assert.False(t, got.ExpiresAt.IsZero())

		_, err = repo.Get(ctx, "T3")
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S2")))

		got, err := repo.Get(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, "S2", got.SessionHandle)

		// S1 no longer owns T1
		n, err := repo.DeleteBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, err = repo.Get(ctx, "T1")
		assert.NoError(t, err)
	})

	t.Run("SessionHoldsOneReference", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Put(ctx, NewRecord("T2", "S1")))

		_, err := repo.Get(ctx, "T1")
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound))

		got, err := repo.Get(ctx, "T2")
		require.NoError(t, err)
		assert.Equal(t, "S1", got.SessionHandle)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		assert.NoError(t, repo.Delete(ctx, "missing"))

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Delete(ctx, "T1"))
		require.NoError(t, repo.Delete(ctx, "T1"))

		_, err := repo.Get(ctx, "T1")
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound))

		n, err := repo.DeleteBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("DeleteBySession", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Put(ctx, NewRecord("T2", "S2")))

		n, err := repo.DeleteBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = repo.DeleteBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, err = repo.Get(ctx, "T1")
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
		_, err = repo.Get(ctx, "T2")
		assert.NoError(t, err)
	})

	t.Run("ExpiredRecordIsAbsent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		record := NewRecord("T1", "S1")
		record.CreatedAt = record.CreatedAt.Add(-2 * time.Hour)
		record.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, repo.Put(ctx, record))

		_, err := repo.Get(ctx, "T1")
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
	})

	t.Run("DeliveredAtRoundTrips", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		record := NewRecord("T1", "S1")
		require.NoError(t, repo.Put(ctx, record))

		delivered := time.Now().UTC().Truncate(time.Millisecond)
		record.DeliveredAt = &delivered
		require.NoError(t, repo.Put(ctx, record))

		got, err := repo.Get(ctx, "T1")
		require.NoError(t, err)
		require.NotNil(t, got.DeliveredAt)
		assert.True(t, delivered.Equal(*got.DeliveredAt))
	})

	t.Run("MarkDeliveredOnlyForHolder", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		delivered := time.Now().UTC().Truncate(time.Millisecond)

		marked, err := repo.MarkDelivered(ctx, "missing", "S1", delivered)
		require.NoError(t, err)
		assert.False(t, marked)

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S2")))

		// S1 lost T1 to a newer registration
		marked, err = repo.MarkDelivered(ctx, "T1", "S1", delivered)
		require.NoError(t, err)
		assert.False(t, marked)

		got, err := repo.Get(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, "S2", got.SessionHandle)
		assert.Nil(t, got.DeliveredAt)

		marked, err = repo.MarkDelivered(ctx, "T1", "S2", delivered)
		require.NoError(t, err)
		assert.True(t, marked)

		got, err = repo.Get(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, "S2", got.SessionHandle)
		require.NotNil(t, got.DeliveredAt)
		assert.True(t, delivered.Equal(*got.DeliveredAt))

		// The index still belongs to S2
		n, err := repo.DeleteBySession(ctx, "S2")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ReleaseOnlyForHolder", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		released, err := repo.Release(ctx, "missing", "S1")
		require.NoError(t, err)
		assert.False(t, released)

		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S1")))
		require.NoError(t, repo.Put(ctx, NewRecord("T1", "S2")))

		released, err = repo.Release(ctx, "T1", "S1")
		require.NoError(t, err)
		assert.False(t, released)

		got, err := repo.Get(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, "S2", got.SessionHandle)

		released, err = repo.Release(ctx, "T1", "S2")
		require.NoError(t, err)
		assert.True(t, released)

		_, err = repo.Get(ctx, "T1")
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound))

		n, err := repo.DeleteBySession(ctx, "S2")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const writers = 20
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ref := fmt.Sprintf("T%d", i)
				assert.NoError(t, repo.Put(ctx, NewRecord(ref, "S"+ref)))
			}(i)
		}
		wg.Wait()

		for i := 0; i < writers; i++ {
			ref := fmt.Sprintf("T%d", i)
			got, err := repo.Get(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, "S"+ref, got.SessionHandle)
		}
	})
}
