package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"sync"
)

// Типы SSE-событий
const (
	EventTypeCacheChanged = "cache.changed"
	eventTypeImportPrefix = "import."
)

// ClientChannel - канал, через который события уходят одному клиенту (вкладке браузера)
type ClientChannel chan []byte

type eventWithContext struct {
	ctx       context.Context
	eventType string
	payload   interface{}
}

// SSENotifier рассылает события импорта и изменения кэша всем подключенным клиентам
type SSENotifier struct {
	clients map[ClientChannel]struct{}
	mu      sync.RWMutex

	eventChan chan eventWithContext
	done      chan struct{}
	closeOnce sync.Once

	logger port.LoggerPort
}

// NewSSENotifier создает и запускает новый нотификатор
func NewSSENotifier(baseLogger port.LoggerPort) *SSENotifier {
	n := &SSENotifier{
		clients:   make(map[ClientChannel]struct{}),
		eventChan: make(chan eventWithContext, 100),
		done:      make(chan struct{}),
		logger:    baseLogger.WithFields(port.Fields{"component": "SSENotifier"}),
	}

	go n.dispatcher()

	return n
}

// dispatcher работает в фоне до Close
func (n *SSENotifier) dispatcher() {
	n.logger.Debug("Notifier dispatcher started.", nil)
	for {
		var pkg eventWithContext
		select {
		case pkg = <-n.eventChan:
		case <-n.done:
			return
		}

		eventLogger := contextkeys.LoggerFromContext(pkg.ctx).WithFields(port.Fields{
			"component":  "SSENotifier.dispatcher",
			"event_type": pkg.eventType,
		})

		payload, err := json.Marshal(pkg.payload)
		if err != nil {
			eventLogger.Error("Failed to marshal event", err, nil)
			continue
		}
		sseMessage := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", pkg.eventType, payload))

		n.mu.RLock()
		for ch := range n.clients {
			// клиент с переполненным буфером пропускает событие, остальные его получают
			select {
			case ch <- sseMessage:
			default:
				eventLogger.Warn("Client channel is full, skipping.", nil)
			}
		}
		n.mu.RUnlock()
	}
}

// Publish реализует ImportEventsPort
func (n *SSENotifier) Publish(ctx context.Context, event domain.ImportEvent) {
	n.enqueue(ctx, eventTypeImportPrefix+string(event.State), event)
}

// NotifyCacheChange подписывается на кэш через PropertyCache.Subscribe
func (n *SSENotifier) NotifyCacheChange(change domain.CacheChange) {
	n.enqueue(context.Background(), EventTypeCacheChanged, change)
}

// enqueue не блокирует импорт: при заполненном буфере событие теряется
func (n *SSENotifier) enqueue(ctx context.Context, eventType string, payload interface{}) {
	select {
	case n.eventChan <- eventWithContext{ctx: ctx, eventType: eventType, payload: payload}:
	default:
		n.logger.Warn("Notifier queue is full, event dropped", port.Fields{"event_type": eventType})
	}
}

// AddClient регистрирует новое SSE-соединение
func (n *SSENotifier) AddClient() ClientChannel {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(ClientChannel, 100)
	n.clients[ch] = struct{}{}

	n.logger.Info("SSE client connected", port.Fields{"total_connections": len(n.clients)})
	return ch
}

// RemoveClient вызывается хендлером, когда клиент закрывает соединение
func (n *SSENotifier) RemoveClient(ch ClientChannel) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.clients, ch)
	n.logger.Info("SSE client disconnected", port.Fields{"remaining_connections": len(n.clients)})
}

// Close останавливает диспетчер
func (n *SSENotifier) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}
