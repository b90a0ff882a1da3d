package usecase

import (
	"context"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"sync"
	"time"
)

// RemoteSynchronizer зеркалирует чанки в удаленное хранилище, не блокируя импорт.
// Неудачный upsert только логируется: без повторов и без отката локального кэша.
type RemoteSynchronizer struct {
	store   port.RemotePropertyStorePort
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewRemoteSynchronizer создает синхронизатор; timeout <= 0 означает без ограничения
func NewRemoteSynchronizer(store port.RemotePropertyStorePort, timeout time.Duration) *RemoteSynchronizer {
	return &RemoteSynchronizer{
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

// SyncChunk запускает один upsert на чанк и сразу возвращается.
// Канал получает ровно один результат; читать его не обязательно.
func (s *RemoteSynchronizer) SyncChunk(ctx context.Context, records []domain.Property) <-chan domain.SyncOutcome {
	out := make(chan domain.SyncOutcome, 1)

	chunk := make([]domain.Property, len(records))
	for i, rec := range records {
		chunk[i] = rec.Clone()
	}

	// отмена запроса импорта не должна обрывать уже начатую запись
	syncCtx := context.WithoutCancel(ctx)
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":    "RemoteSynchronizer",
		"record_count": len(chunk),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)

		if s.timeout > 0 {
			var cancel context.CancelFunc
			syncCtx, cancel = context.WithTimeout(syncCtx, s.timeout)
			defer cancel()
		}

		outcome := domain.SyncOutcome{Records: len(chunk), StartedAt: s.now()}
		outcome.Err = s.store.UpsertProperties(syncCtx, chunk, outcome.StartedAt)
		outcome.FinishedAt = s.now()

		if outcome.Err != nil {
			logger.Error("Remote upsert failed, local cache kept as is", outcome.Err, nil)
		} else {
			logger.Debug("Chunk mirrored to remote store", port.Fields{
				"duration_ms": outcome.FinishedAt.Sub(outcome.StartedAt).Milliseconds(),
			})
		}

		out <- outcome
	}()

	return out
}

// Wait блокируется, пока не завершатся все начатые синхронизации
func (s *RemoteSynchronizer) Wait() {
	s.wg.Wait()
}
