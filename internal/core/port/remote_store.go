package port

import (
	"context"
	"property-feed-service/internal/core/domain"
	"time"
)

// RemotePropertyStorePort - удаленная реляционная таблица-зеркало
type RemotePropertyStorePort interface {
	// UpsertProperties вставляет или перезаписывает строки по ключу ref одним запросом
	UpsertProperties(ctx context.Context, records []domain.Property, updatedAt time.Time) error
	// FetchRecentProperties возвращает не более limit последних обновленных строк, от самой свежей к старой
	FetchRecentProperties(ctx context.Context, limit int) ([]domain.Property, error)
}

// RemoteSyncPort отправляет чанк в удаленное хранилище, не блокируя вызывающего
type RemoteSyncPort interface {
	SyncChunk(ctx context.Context, records []domain.Property) <-chan domain.SyncOutcome
}
