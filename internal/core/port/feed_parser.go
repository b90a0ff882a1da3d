package port

import (
	"context"
	"io"
	"property-feed-service/internal/core/domain"
)

// FeedDocument - разобранный фид: упорядоченный список узлов объектов
type FeedDocument interface {
	// Len - количество узлов <property>/<item> в документе
	Len() int
	// Extract извлекает объект из узла с порядковым номером index.
	// false означает, что узел не дал записи; импорт при этом продолжается.
	Extract(ctx context.Context, index int) (domain.Property, bool)
}

// FeedParserPort разбирает документ фида целиком один раз
type FeedParserPort interface {
	Parse(ctx context.Context, r io.Reader) (FeedDocument, error)
}

// TextNormalizerPort очищает свободный текст описаний
type TextNormalizerPort interface {
	Normalize(s string) string
}
