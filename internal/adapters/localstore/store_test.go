package localstore

import (
	"context"
	"path/filepath"
	"property-feed-service/internal/core/port"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T, quota int64) map[string]port.KeyValueStoragePort {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store", "local.db"), quota)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]port.KeyValueStoragePort{
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(quota),
	}
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, found, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Set(ctx, "k", "v1"))
			require.NoError(t, store.Set(ctx, "k", "v2"))

			value, found, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "v2", value)
		})
	}
}

func TestStore_Quota(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, 64) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "a", strings.Repeat("x", 40)))

			err := store.Set(ctx, "b", strings.Repeat("y", 40))
			assert.ErrorIs(t, err, port.ErrQuotaExceeded)

			// перезапись того же ключа считается без старого значения
			require.NoError(t, store.Set(ctx, "a", strings.Repeat("z", 60)))

			value, found, err := store.Get(ctx, "a")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Len(t, value, 60)

			_, found, err = store.Get(ctx, "b")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}
