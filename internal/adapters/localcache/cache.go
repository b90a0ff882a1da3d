package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"slices"
	"sort"
	"sync"
)

// Config для PropertyCache
type Config struct {
	StorageKey           string
	PersistLimit         int
	PersistFallbackLimit int
}

type entry struct {
	record domain.Property
	// seq растет с каждой записью, по нему выбираются последние записи для диска
	seq uint64
}

type subscriber struct {
	id       uint64
	listener port.CacheListener
}

// PropertyCache - авторитетный набор объектов в памяти процесса.
// На диск уходит только ограниченное число последних записей.
type PropertyCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	seq     uint64

	// persistMu сохраняет порядок записей на диск между параллельными слияниями
	persistMu sync.Mutex
	storage   port.KeyValueStoragePort
	cfg       Config

	subsMu    sync.Mutex
	subs      []subscriber
	nextSubID uint64
}

func NewPropertyCache(storage port.KeyValueStoragePort, cfg Config) *PropertyCache {
	if cfg.StorageKey == "" {
		cfg.StorageKey = constants.CacheStorageKey
	}
	if cfg.PersistLimit <= 0 {
		cfg.PersistLimit = constants.DefaultCachePersistLimit
	}
	if cfg.PersistFallbackLimit <= 0 {
		cfg.PersistFallbackLimit = constants.DefaultCachePersistFallbackLimit
	}
	return &PropertyCache{
		entries: make(map[string]entry),
		storage: storage,
		cfg:     cfg,
	}
}

// Load поднимает кэш из локального хранилища. Отсутствующие или
// поврежденные данные означают холодный старт, а не ошибку.
func (c *PropertyCache) Load(ctx context.Context) int {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "PropertyCache"})

	raw, found, err := c.storage.Get(ctx, c.cfg.StorageKey)
	if err != nil {
		logger.Warn("Failed to read persisted cache, starting empty", port.Fields{"error": err.Error()})
		return 0
	}
	if !found || raw == "" {
		logger.Info("No persisted cache found, starting empty", nil)
		return 0
	}

	var records []domain.Property
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		logger.Warn("Persisted cache is malformed, starting empty", port.Fields{"error": err.Error()})
		return 0
	}

	// на диске записи лежат от новой к старой, а seq растет с каждой вставкой
	slices.Reverse(records)

	c.mu.Lock()
	c.entries = make(map[string]entry, len(records))
	c.putLocked(records)
	size := len(c.entries)
	c.mu.Unlock()

	logger.Info("Cache loaded from local storage", port.Fields{"records": size})
	return size
}

func (c *PropertyCache) GetAll() []domain.Property {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Property, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.record.Clone())
	}
	return out
}

func (c *PropertyCache) Get(key string) (domain.Property, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Property{}, false
	}
	return e.record.Clone(), true
}

func (c *PropertyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MergeChunk: запись с уже известным ключом заменяется, новая добавляется
func (c *PropertyCache) MergeChunk(ctx context.Context, records []domain.Property) {
	c.apply(ctx, domain.CacheChangeMerge, records)
}

// ReplaceAll выбрасывает текущее содержимое и кладет records.
// Порядок records - от старой к новой, как у MergeChunk.
func (c *PropertyCache) ReplaceAll(ctx context.Context, records []domain.Property) {
	c.apply(ctx, domain.CacheChangeReplace, records)
}

func (c *PropertyCache) apply(ctx context.Context, reason domain.CacheChangeReason, records []domain.Property) {
	c.mu.Lock()
	if reason == domain.CacheChangeReplace {
		c.entries = make(map[string]entry, len(records))
	}
	keys := c.putLocked(records)
	size := len(c.entries)
	snapshot := c.recentLocked(c.cfg.PersistLimit)

	c.persistMu.Lock()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	c.persistMu.Unlock()

	c.notify(domain.CacheChange{Reason: reason, Keys: keys, Size: size})
}

func (c *PropertyCache) putLocked(records []domain.Property) []string {
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if key == "" {
			continue
		}
		c.seq++
		c.entries[key] = entry{record: rec.Clone(), seq: c.seq}
		keys = append(keys, key)
	}
	return keys
}

// recentLocked возвращает до limit записей, от самой свежей к старой
func (c *PropertyCache) recentLocked(limit int) []domain.Property {
	all := make([]entry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]domain.Property, len(all))
	for i, e := range all {
		out[i] = e.record
	}
	return out
}

// persist пишет срез на диск; при ошибке пробует меньший срез, затем сдается.
// Ошибки не выходят за пределы кэша.
func (c *PropertyCache) persist(ctx context.Context, recent []domain.Property) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "PropertyCache"})

	err := c.writeSlice(ctx, recent)
	if err == nil {
		return
	}
	logger.Warn("Failed to persist cache, retrying with a smaller slice", port.Fields{
		"error":    err.Error(),
		"records":  len(recent),
		"fallback": c.cfg.PersistFallbackLimit,
	})

	if len(recent) > c.cfg.PersistFallbackLimit {
		recent = recent[:c.cfg.PersistFallbackLimit]
	}
	if err := c.writeSlice(ctx, recent); err != nil {
		logger.Error("Failed to persist cache fallback slice, giving up", err, port.Fields{"records": len(recent)})
	}
}

func (c *PropertyCache) writeSlice(ctx context.Context, records []domain.Property) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	return c.storage.Set(ctx, c.cfg.StorageKey, string(data))
}

// Subscribe регистрирует слушателя. Слушатели вызываются синхронно,
// в порядке подписки, после каждого слияния или замены.
func (c *PropertyCache) Subscribe(listener port.CacheListener) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscriber{id: id, listener: listener})

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *PropertyCache) notify(change domain.CacheChange) {
	c.subsMu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subsMu.Unlock()

	for _, s := range subs {
		s.listener(change)
	}
}
