package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipeless/payment-relay/internal/adapter/repository/repotest"
	"github.com/swipeless/payment-relay/internal/config"
	"github.com/swipeless/payment-relay/internal/domain"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		backend string
	}{
		{name: "Memory", backend: config.BackendMemory},
		{name: "Badger", backend: config.BackendBadger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())

			store, err := openStore(ctx, config.StoreConfig{
				Backend:       tt.backend,
				BadgerPath:    t.TempDir(),
				RecordTTL:     time.Hour,
				SweepInterval: time.Minute,
			}, nil)
			require.NoError(t, err)
			defer func() {
				cancel()
				assert.NoError(t, store.close())
			}()

			require.NoError(t, store.ping.Ping(ctx))
			require.NoError(t, store.repo.Put(ctx, repotest.NewRecord("T1", "S1")))

			got, err := store.repo.Get(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, "S1", got.SessionHandle)

			_, err = store.repo.Get(ctx, "T2")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		})
	}
}
