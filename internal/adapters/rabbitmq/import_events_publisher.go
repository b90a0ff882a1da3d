package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/contracts"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 10 * time.Second

// messagePublisher - часть rabbitmq_producer.Publisher, нужная адаптеру
type messagePublisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// ImportEventsPublisherAdapter реализует ImportEventsPort поверх RabbitMQ.
// Ошибка публикации только логируется: импорт от брокера не зависит.
type ImportEventsPublisherAdapter struct {
	producer messagePublisher
}

func NewImportEventsPublisherAdapter(producer messagePublisher) (*ImportEventsPublisherAdapter, error) {
	if producer == nil {
		return nil, fmt.Errorf("rabbitmq adapter: producer cannot be nil")
	}
	return &ImportEventsPublisherAdapter{producer: producer}, nil
}

// routingKeyFor: idle не публикуется
func routingKeyFor(state domain.ImportState) (string, bool) {
	switch state {
	case domain.ImportStateParsing, domain.ImportStateImporting:
		return constants.RoutingKeyImportProgress, true
	case domain.ImportStateDone:
		return constants.RoutingKeyImportFinished, true
	case domain.ImportStateError:
		return constants.RoutingKeyImportFailed, true
	default:
		return "", false
	}
}

func (a *ImportEventsPublisherAdapter) Publish(ctx context.Context, event domain.ImportEvent) {
	routingKey, ok := routingKeyFor(event.State)
	if !ok {
		return
	}
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "ImportEventsPublisherAdapter",
		"routing_key": routingKey,
		"import_id":   event.ImportID.String(),
	})

	body, err := json.Marshal(ImportStatusDTO{
		ImportID:  event.ImportID,
		Source:    event.Source,
		State:     string(event.State),
		Processed: event.Processed,
		Total:     event.Total,
		Imported:  event.Imported,
		Skipped:   event.Skipped,
		Message:   event.Message,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		logger.Error("Failed to marshal import status", err, nil)
		return
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Headers: amqp.Table{
			"event-type":    contracts.ImportStatusEvent,
			"event-version": contracts.EventVersionV1,
		},
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers["x-trace-id"] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := a.producer.Publish(publishCtx, routingKey, msg); err != nil {
		logger.Error("Failed to publish import status", err, nil)
		return
	}
	logger.Debug("Import status published", port.Fields{"state": string(event.State)})
}
