package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/contracts"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"property-feed-service/internal/core/port/usecases_port"
	"property-feed-service/pkg/rabbitmq/rabbitmq_common"
	"property-feed-service/pkg/rabbitmq/rabbitmq_consumer"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ImportTasksConsumerAdapter принимает команды импорта из очереди и запускает ExecuteFromURL
type ImportTasksConsumerAdapter struct {
	consumer *rabbitmq_consumer.DistributingConsumer
	importUC usecases_port.ImportFeedPort
	logger   port.LoggerPort
}

func NewImportTasksConsumerAdapter(
	consumerCfg rabbitmq_consumer.ConsumerConfig,
	importUC usecases_port.ImportFeedPort,
	logger port.LoggerPort,
	connManager *rabbitmq_common.ConnectionManager,
) (*ImportTasksConsumerAdapter, error) {
	adapter := &ImportTasksConsumerAdapter{
		importUC: importUC,
		logger:   logger.WithFields(port.Fields{"component": "ImportTasksConsumerAdapter"}),
	}

	consumerCfg.Logger = NewPkgLoggerBridge(logger.WithFields(port.Fields{
		"component":    "rabbitmq_distributing_consumer",
		"consumer_tag": consumerCfg.ConsumerTag,
	}))

	consumer, err := rabbitmq_consumer.NewDistributingConsumer(consumerCfg, adapter.messageHandler, connManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ consumer for import tasks: %w", err)
	}
	adapter.consumer = consumer
	return adapter, nil
}

// messageHandler: nil - сообщение подтверждается, ошибка - ретрай и затем DLQ
func (a *ImportTasksConsumerAdapter) messageHandler(d amqp.Delivery) error {
	rawTraceID, _ := d.Headers["x-trace-id"].(string)
	ctx, msgLogger := contextkeys.ContextWithTrace(context.Background(), a.logger, contextkeys.NormalizeTraceID(rawTraceID))
	msgLogger = msgLogger.WithFields(port.Fields{"delivery_tag": d.DeliveryTag})

	return a.handle(ctx, d.Body, msgLogger)
}

func (a *ImportTasksConsumerAdapter) handle(ctx context.Context, body []byte, msgLogger port.LoggerPort) error {
	if err := contracts.ValidateEvent(contracts.ImportTaskEvent, contracts.EventVersionV1, body); err != nil {
		msgLogger.Error("Message failed schema validation. Rejecting.", err, nil)
		return err
	}

	var task ImportTaskDTO
	if err := json.Unmarshal(body, &task); err != nil {
		msgLogger.Error("Error unmarshalling import task", err, nil)
		return fmt.Errorf("unmarshal error: %w", err)
	}

	taskLogger := msgLogger.WithFields(port.Fields{"task_id": task.TaskID.String(), "feed_url": task.FeedURL})
	ctx = contextkeys.ContextWithLogger(ctx, taskLogger)
	taskLogger.Info("Received import task", nil)

	source := task.Source
	if source == "" {
		source = constants.ImportSourceQueue
	}
	// каждая попытка - отдельный запуск, иначе ретрай попадет в уже завершенную запись трекера
	req := domain.ImportRequest{
		ID:       uuid.New(),
		Source:   source,
		FileName: task.FileName,
		FeedURL:  task.FeedURL,
	}

	_, err := a.importUC.ExecuteFromURL(ctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrMalformedFeed), errors.Is(err, domain.ErrNoFeedNodes):
		// повтор не поможет: документ останется тем же
		taskLogger.Warn("Feed is unusable, task acknowledged", port.Fields{"error": err.Error()})
		return nil
	default:
		taskLogger.Error("Import task failed, will be retried", err, nil)
		return err
	}
}

// Start реализует EventListenerPort
func (a *ImportTasksConsumerAdapter) Start(ctx context.Context) error {
	return a.consumer.StartConsuming(ctx)
}

// Close реализует EventListenerPort
func (a *ImportTasksConsumerAdapter) Close() error {
	return a.consumer.Close()
}
