package port

import (
	"context"
	"property-feed-service/internal/core/domain"

	"github.com/google/uuid"
)

// ImportEventsPort получает события жизненного цикла импорта
type ImportEventsPort interface {
	Publish(ctx context.Context, event domain.ImportEvent)
}

// ImportTrackerPort - чтение состояния запусков импорта
type ImportTrackerPort interface {
	Get(id uuid.UUID) (domain.ImportRun, error)
	List() []domain.ImportRun
}
