package usecases_port

import (
	"context"
	"property-feed-service/internal/core/domain"

	"github.com/google/uuid"
)

type GetImportsPort interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error)
	List(ctx context.Context) ([]domain.ImportRun, error)
}
