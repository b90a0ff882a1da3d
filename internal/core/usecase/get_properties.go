package usecase

import (
	"context"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"sort"
)

type GetPropertiesUseCase struct {
	cache port.PropertyCachePort
}

func NewGetPropertiesUseCase(cache port.PropertyCachePort) *GetPropertiesUseCase {
	return &GetPropertiesUseCase{cache: cache}
}

// List отдает страницу кэша. Порядок кэша не определен, поэтому
// страницы строятся по отсортированному ключу.
func (uc *GetPropertiesUseCase) List(ctx context.Context, limit, offset int) ([]domain.Property, int, error) {
	all := uc.cache.GetAll()
	sort.Slice(all, func(i, j int) bool { return all[i].Key() < all[j].Key() })

	total := len(all)
	if offset >= total {
		return []domain.Property{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (uc *GetPropertiesUseCase) GetByRef(ctx context.Context, ref string) (*domain.Property, error) {
	rec, ok := uc.cache.Get(ref)
	if !ok {
		return nil, domain.ErrPropertyNotFound
	}
	return &rec, nil
}
