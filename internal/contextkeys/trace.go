package contextkeys

import (
	"context"
	"property-feed-service/internal/core/port"

	"github.com/google/uuid"
)

type traceIDKeyType struct{}

var traceIDKey = traceIDKeyType{}

// NormalizeTraceID принимает trace id от клиента или из заголовка сообщения.
// Все, что не является UUID, заменяется новым идентификатором.
func NormalizeTraceID(raw string) string {
	if _, err := uuid.Parse(raw); err != nil {
		return uuid.New().String()
	}
	return raw
}

// ContextWithTrace кладет в контекст trace id и логгер с полем trace_id.
// Логгер возвращается и отдельно, для полей уровня транспорта.
func ContextWithTrace(ctx context.Context, base port.LoggerPort, traceID string) (context.Context, port.LoggerPort) {
	traced := base.WithFields(port.Fields{"trace_id": traceID})
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return ContextWithLogger(ctx, traced), traced
}

// TraceIDFromContext возвращает пустую строку, если trace id не задан
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}
