package usecases_port

import (
	"context"
	"property-feed-service/internal/core/domain"
)

type GetPropertiesPort interface {
	List(ctx context.Context, limit, offset int) ([]domain.Property, int, error)
	GetByRef(ctx context.Context, ref string) (*domain.Property, error)
}
