package rabbitmq_consumer

import (
	"context"
	"fmt"
	"property-feed-service/pkg/rabbitmq/rabbitmq_common"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler обрабатывает одно сообщение. Ack/Nack решает пакет:
// nil - Ack, ошибка - ретрай или финальная DLQ.
type MessageHandler func(delivery amqp.Delivery) error

// DistributingConsumer обрабатывает каждое сообщение в своей горутине
type DistributingConsumer struct {
	base    *baseConsumer
	handler MessageHandler
}

func NewDistributingConsumer(cfg ConsumerConfig, handler MessageHandler, connManager *rabbitmq_common.ConnectionManager) (*DistributingConsumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("distributing Consumer: message handler is required")
	}
	bc, err := newBaseConsumer(cfg, connManager)
	if err != nil {
		return nil, fmt.Errorf("distributing Consumer: %w", err)
	}
	return &DistributingConsumer{base: bc, handler: handler}, nil
}

// StartConsuming блокируется до отмены ctx или закрытия соединения
func (c *DistributingConsumer) StartConsuming(ctx context.Context) error {
	b := c.base
	if b.channel == nil || b.connection == nil || b.connection.IsClosed() {
		return fmt.Errorf("distributing Consumer: not connected")
	}

	msgs, err := b.channel.Consume(b.actualQueueName, b.config.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("distributing Consumer: failed to register a consumer on queue '%s': %w", b.actualQueueName, err)
	}
	b.Logger.Info("[*] Waiting for messages on queue", "queue_name", b.actualQueueName)

	go func() {
		for {
			// отмена проверяется первой, чтобы не запускать новых обработчиков
			select {
			case <-ctx.Done():
				return
			default:
			}

			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					b.Logger.Info("Deliveries channel closed by RabbitMQ. Exiting loop.", "consumer_tag", b.config.ConsumerTag)
					return
				}
				b.wg.Add(1)
				go func(delivery amqp.Delivery) {
					defer b.wg.Done()
					c.process(delivery)
				}(d)
			}
		}
	}()

	notifyClose := b.connection.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-ctx.Done():
		b.Logger.Info("Context cancelled. Shutting down consumer.", "consumer_tag", b.config.ConsumerTag)
		return nil
	case err := <-notifyClose:
		if err == nil {
			return nil
		}
		b.Logger.Error(err, "Connection closed for consumer.", "consumer_tag", b.config.ConsumerTag)
		return err
	}
}

func (c *DistributingConsumer) process(delivery amqp.Delivery) {
	b := c.base
	processErr := c.handler(delivery)
	if processErr == nil {
		_ = delivery.Ack(false)
		b.Logger.Debug("[+] Message Ack'd", "delivery_tag", delivery.DeliveryTag)
		return
	}

	b.Logger.Error(processErr, "Handler error for message", "delivery_tag", delivery.DeliveryTag)
	if !b.config.EnableRetryMechanism {
		_ = delivery.Nack(false, false)
		return
	}

	deaths := deathCount(delivery, b.actualQueueName)
	if deaths < int64(b.config.MaxRetries) {
		b.Logger.Info("Retrying message", "delivery_tag", delivery.DeliveryTag, "death_count", deaths)
		_ = delivery.Nack(false, false)
		return
	}

	b.Logger.Warn("Max retries reached for message. Publishing to final DLX.", "delivery_tag", delivery.DeliveryTag)
	err := b.finalDlxPublisher.Publish(context.Background(), b.config.FinalDLQRoutingKey, amqp.Publishing{
		ContentType:  delivery.ContentType,
		Body:         delivery.Body,
		Headers:      delivery.Headers,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		// не смогли отправить в DLQ: еще один круг ретраев
		b.Logger.Error(err, "Failed to publish to final DLX", "delivery_tag", delivery.DeliveryTag)
		_ = delivery.Nack(false, false)
		return
	}
	_ = delivery.Ack(false)
}

func (c *DistributingConsumer) Close() error {
	c.base.Logger.Info("Closing consumer")
	return c.base.Close()
}
