package tracker

import (
	"context"
	"property-feed-service/internal/core/domain"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ImportTracker хранит состояние запусков импорта в памяти процесса.
// Получает события как ImportEventsPort и отдает их через ImportTrackerPort.
type ImportTracker struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*domain.ImportRun
	// maxRuns ограничивает историю; самые старые завершенные запуски вытесняются
	maxRuns int
}

func NewImportTracker(maxRuns int) *ImportTracker {
	if maxRuns <= 0 {
		maxRuns = 100
	}
	return &ImportTracker{
		runs:    make(map[uuid.UUID]*domain.ImportRun),
		maxRuns: maxRuns,
	}
}

func (t *ImportTracker) Publish(_ context.Context, event domain.ImportEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[event.ImportID]
	if !ok {
		run = &domain.ImportRun{
			ID:        event.ImportID,
			Source:    event.Source,
			StartedAt: event.Timestamp,
		}
		t.runs[event.ImportID] = run
		t.evictLocked()
	}

	// терминальное состояние не перезаписывается запоздавшими событиями
	if run.State.IsTerminal() {
		return
	}

	run.State = event.State
	run.Processed = event.Processed
	run.Total = event.Total
	run.Imported = event.Imported
	run.Skipped = event.Skipped
	run.Message = event.Message
	run.UpdatedAt = event.Timestamp
	if event.State.IsTerminal() {
		finished := event.Timestamp
		run.FinishedAt = &finished
	}
}

func (t *ImportTracker) Get(id uuid.UUID) (domain.ImportRun, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[id]
	if !ok {
		return domain.ImportRun{}, domain.ErrImportNotFound
	}
	return *run, nil
}

// List возвращает запуски от новых к старым
func (t *ImportTracker) List() []domain.ImportRun {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.ImportRun, 0, len(t.runs))
	for _, run := range t.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (t *ImportTracker) evictLocked() {
	for len(t.runs) > t.maxRuns {
		var oldest *domain.ImportRun
		for _, run := range t.runs {
			if !run.State.IsTerminal() {
				continue
			}
			if oldest == nil || run.StartedAt.Before(oldest.StartedAt) {
				oldest = run
			}
		}
		if oldest == nil {
			return
		}
		delete(t.runs, oldest.ID)
	}
}
