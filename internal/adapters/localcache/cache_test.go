package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"property-feed-service/internal/adapters/localstore"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quotaStorage отклоняет значения, в которых больше maxRecords записей
type quotaStorage struct {
	mu         sync.Mutex
	maxRecords int
	value      string
	attempts   []int
}

func (s *quotaStorage) Get(_ context.Context, _ string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.value != "", nil
}

func (s *quotaStorage) Set(_ context.Context, _ string, value string) error {
	var records []domain.Property
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, len(records))
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		return port.ErrQuotaExceeded
	}
	s.value = value
	return nil
}

func (s *quotaStorage) persisted(t *testing.T) []domain.Property {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []domain.Property
	require.NoError(t, json.Unmarshal([]byte(s.value), &records))
	return records
}

func makeRecords(prefix string, n int, price float64) []domain.Property {
	out := make([]domain.Property, n)
	for i := range out {
		out[i] = domain.Property{
			ExternalID: fmt.Sprintf("%s-%d", prefix, i),
			Price:      price,
			Gallery:    []string{"a.jpg"},
		}
	}
	return out
}

func TestMergeChunk_ReplaceSemantics(t *testing.T) {
	ctx := context.Background()
	cache := NewPropertyCache(localstore.NewMemoryStore(0), Config{})

	cache.MergeChunk(ctx, makeRecords("A", 3, 100))
	cache.MergeChunk(ctx, []domain.Property{{ExternalID: "A-1", Price: 999}})

	assert.Equal(t, 3, cache.Len())
	rec, ok := cache.Get("A-1")
	require.True(t, ok)
	assert.Equal(t, 999.0, rec.Price)

	rec, ok = cache.Get("A-0")
	require.True(t, ok)
	assert.Equal(t, 100.0, rec.Price)
}

func TestMergeChunk_Idempotent(t *testing.T) {
	ctx := context.Background()
	cache := NewPropertyCache(localstore.NewMemoryStore(0), Config{})

	records := makeRecords("X", 10, 50)
	cache.MergeChunk(ctx, records)
	first := cache.GetAll()
	cache.MergeChunk(ctx, records)

	assert.Equal(t, 10, cache.Len())
	assert.ElementsMatch(t, first, cache.GetAll())
}

func TestMergeChunk_FallsBackToInternalID(t *testing.T) {
	ctx := context.Background()
	cache := NewPropertyCache(localstore.NewMemoryStore(0), Config{})

	cache.MergeChunk(ctx, []domain.Property{{InternalID: "int-1", Price: 1}, {InternalID: "int-1", Price: 2}})

	assert.Equal(t, 1, cache.Len())
	rec, ok := cache.Get("int-1")
	require.True(t, ok)
	assert.Equal(t, 2.0, rec.Price)
}

func TestGetAll_ReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	cache := NewPropertyCache(localstore.NewMemoryStore(0), Config{})
	cache.MergeChunk(ctx, makeRecords("S", 1, 10))

	all := cache.GetAll()
	all[0].Price = 0
	all[0].Gallery[0] = "changed.jpg"

	rec, _ := cache.Get("S-0")
	assert.Equal(t, 10.0, rec.Price)
	assert.Equal(t, "a.jpg", rec.Gallery[0])
}

func TestPersist_LimitsRecentRecords(t *testing.T) {
	ctx := context.Background()
	storage := &quotaStorage{}
	cache := NewPropertyCache(storage, Config{})

	cache.MergeChunk(ctx, makeRecords("old", 150, 1))
	cache.MergeChunk(ctx, makeRecords("new", 150, 2))

	assert.Equal(t, 300, cache.Len(), "memory is never truncated")

	persisted := storage.persisted(t)
	require.Len(t, persisted, constants.DefaultCachePersistLimit)
	newCount := 0
	for _, rec := range persisted {
		if rec.Price == 2 {
			newCount++
		}
	}
	assert.Equal(t, 150, newCount, "the most recently merged records are persisted")
}

func TestPersist_QuotaFallback(t *testing.T) {
	ctx := context.Background()
	storage := &quotaStorage{maxRecords: 60}
	cache := NewPropertyCache(storage, Config{})

	cache.MergeChunk(ctx, makeRecords("q", 250, 1))

	assert.Equal(t, []int{200, 50}, storage.attempts)
	assert.Len(t, storage.persisted(t), 50)
	assert.Equal(t, 250, cache.Len())
}

func TestPersist_GivesUpSilently(t *testing.T) {
	ctx := context.Background()
	storage := &quotaStorage{maxRecords: 10}
	cache := NewPropertyCache(storage, Config{})

	assert.NotPanics(t, func() {
		cache.MergeChunk(ctx, makeRecords("g", 80, 1))
	})
	assert.Equal(t, []int{80, 50}, storage.attempts)
	assert.Equal(t, 80, cache.Len())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("restores persisted records", func(t *testing.T) {
		store := localstore.NewMemoryStore(0)
		NewPropertyCache(store, Config{}).MergeChunk(ctx, makeRecords("p", 5, 7))

		restored := NewPropertyCache(store, Config{})
		assert.Equal(t, 5, restored.Load(ctx))
		_, ok := restored.Get("p-3")
		assert.True(t, ok)
	})

	t.Run("malformed data is a cold start", func(t *testing.T) {
		store := localstore.NewMemoryStore(0)
		require.NoError(t, store.Set(ctx, constants.CacheStorageKey, "{not json"))

		cache := NewPropertyCache(store, Config{})
		assert.Equal(t, 0, cache.Load(ctx))
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("missing data is a cold start", func(t *testing.T) {
		cache := NewPropertyCache(localstore.NewMemoryStore(0), Config{})
		assert.Equal(t, 0, cache.Load(ctx))
	})
}

func TestLoad_KeepsRecencyAcrossRestart(t *testing.T) {
	ctx := context.Background()
	storage := &quotaStorage{}

	before := NewPropertyCache(storage, Config{})
	before.MergeChunk(ctx, makeRecords("old", 100, 1))
	before.MergeChunk(ctx, makeRecords("new", 100, 2))

	after := NewPropertyCache(storage, Config{})
	require.Equal(t, 200, after.Load(ctx))
	after.MergeChunk(ctx, makeRecords("fresh", 150, 3))

	counts := map[float64]int{}
	for _, rec := range storage.persisted(t) {
		counts[rec.Price]++
	}
	assert.Equal(t, map[float64]int{3: 150, 2: 50}, counts)

	persisted := storage.persisted(t)
	assert.Equal(t, "fresh-149", persisted[0].ExternalID)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	cache := NewPropertyCache(localstore.NewMemoryStore(0), Config{})

	var order []string
	var changes []domain.CacheChange
	unsubscribeFirst := cache.Subscribe(func(change domain.CacheChange) {
		order = append(order, "first")
		changes = append(changes, change)
	})
	cache.Subscribe(func(domain.CacheChange) { order = append(order, "second") })

	cache.MergeChunk(ctx, makeRecords("s", 2, 1))
	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.CacheChangeMerge, changes[0].Reason)
	assert.Equal(t, []string{"s-0", "s-1"}, changes[0].Keys)
	assert.Equal(t, 2, changes[0].Size)

	unsubscribeFirst()
	cache.ReplaceAll(ctx, makeRecords("r", 1, 1))
	assert.Equal(t, []string{"first", "second", "second"}, order)
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("s-0")
	assert.False(t, ok)
}
