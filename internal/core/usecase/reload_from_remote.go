package usecase

import (
	"context"
	"fmt"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/port"
	"slices"
)

// ReloadFromRemoteUseCase - восстановление кэша из удаленного хранилища
// (например, после потери локального файла)
type ReloadFromRemoteUseCase struct {
	store port.RemotePropertyStorePort
	cache port.PropertyCachePort
	limit int
}

func NewReloadFromRemoteUseCase(store port.RemotePropertyStorePort, cache port.PropertyCachePort, limit int) *ReloadFromRemoteUseCase {
	if limit <= 0 {
		limit = constants.DefaultRemoteReloadLimit
	}
	return &ReloadFromRemoteUseCase{store: store, cache: cache, limit: limit}
}

// Execute заменяет кэш целиком последними limit строками. При ошибке кэш не трогается.
func (uc *ReloadFromRemoteUseCase) Execute(ctx context.Context) (int, error) {
	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "ReloadFromRemote",
		"limit":    uc.limit,
	})

	records, err := uc.store.FetchRecentProperties(ctx, uc.limit)
	if err != nil {
		ucLogger.Error("Failed to fetch properties from remote store", err, nil)
		return 0, fmt.Errorf("failed to reload from remote: %w", err)
	}

	// хранилище отдает строки от свежих к старым, а кэш считает свежей последнюю запись
	oldestFirst := slices.Clone(records)
	slices.Reverse(oldestFirst)
	uc.cache.ReplaceAll(ctx, oldestFirst)
	ucLogger.Info("Local cache replaced from remote store", port.Fields{"records": len(records)})

	return len(records), nil
}
