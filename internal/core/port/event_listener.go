package port

import "context"

// EventListenerPort - входящий адаптер, который слушает внешний источник событий
type EventListenerPort interface {
	// Start запускает слушателя
	Start(ctx context.Context) error

	// Close корректно останавливает слушателя, дожидаясь завершения активных задач
	Close() error
}
