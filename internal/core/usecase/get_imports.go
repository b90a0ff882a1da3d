package usecase

import (
	"context"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"

	"github.com/google/uuid"
)

type GetImportsUseCase struct {
	tracker port.ImportTrackerPort
}

func NewGetImportsUseCase(tracker port.ImportTrackerPort) *GetImportsUseCase {
	return &GetImportsUseCase{tracker: tracker}
}

func (uc *GetImportsUseCase) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error) {
	run, err := uc.tracker.Get(id)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (uc *GetImportsUseCase) List(ctx context.Context) ([]domain.ImportRun, error) {
	return uc.tracker.List(), nil
}
