package usecases_port

import (
	"context"
	"io"
	"property-feed-service/internal/core/domain"

	"github.com/google/uuid"
)

type ImportFeedPort interface {
	Execute(ctx context.Context, req domain.ImportRequest, feed io.Reader) (*domain.ImportResult, error)
	ExecuteFromURL(ctx context.Context, req domain.ImportRequest) (*domain.ImportResult, error)

	// StartAsync регистрирует импорт и выполняет его в фоне. Если feed == nil,
	// документ скачивается по req.FeedURL.
	StartAsync(ctx context.Context, req domain.ImportRequest, feed io.Reader) uuid.UUID
}
