package port

import (
	"context"
	"property-feed-service/internal/core/domain"
)

// CacheListener вызывается синхронно после каждого изменения кэша
type CacheListener func(change domain.CacheChange)

// PropertyCachePort - локальный кэш объектов, владеющий своей копией на диске
type PropertyCachePort interface {
	GetAll() []domain.Property
	Get(key string) (domain.Property, bool)
	Len() int

	// MergeChunk заменяет записи с совпадающим ключом и добавляет новые
	MergeChunk(ctx context.Context, records []domain.Property)
	// ReplaceAll полностью заменяет содержимое кэша; последняя запись в records считается самой свежей
	ReplaceAll(ctx context.Context, records []domain.Property)

	Subscribe(listener CacheListener) (unsubscribe func())
}
