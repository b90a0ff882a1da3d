package events

import (
	"context"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
)

// MultiImportEventsAdapter доставляет каждое событие импорта всем получателям по порядку
type MultiImportEventsAdapter struct {
	sinks []port.ImportEventsPort
}

func NewMultiImportEventsAdapter(sinks ...port.ImportEventsPort) *MultiImportEventsAdapter {
	active := make([]port.ImportEventsPort, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &MultiImportEventsAdapter{sinks: active}
}

func (m *MultiImportEventsAdapter) Publish(ctx context.Context, event domain.ImportEvent) {
	for _, s := range m.sinks {
		s.Publish(ctx, event)
	}
}
