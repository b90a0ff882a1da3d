package fluentlogger

import (
	"fmt"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// Config - подключение к Fluent Bit
type Config struct {
	Host      string
	Port      int
	TagPrefix string // префикс тегов всех логов сервиса
	Async     bool   // не блокировать сервис, если Fluent Bit недоступен
}

// NewClient создает клиент Fluent Bit. Соединение устанавливается лениво,
// поэтому ошибки доставки проявятся только при первой отправке.
func NewClient(cfg Config) (*fluent.Fluent, error) {
	if cfg.TagPrefix == "" {
		return nil, fmt.Errorf("fluentd tag prefix is required")
	}

	client, err := fluent.New(fluent.Config{
		FluentHost:   cfg.Host,
		FluentPort:   cfg.Port,
		TagPrefix:    cfg.TagPrefix,
		Timeout:      3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Async:        cfg.Async,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fluentd logger: %w", err)
	}
	return client, nil
}
