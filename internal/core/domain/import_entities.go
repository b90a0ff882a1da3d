package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformedFeed - документ не является корректным XML
	ErrMalformedFeed = errors.New("feed is not well-formed XML")
	// ErrNoFeedNodes - в документе нет ни одного <property> или <item>
	ErrNoFeedNodes = errors.New("feed contains no <property> or <item> elements")

	ErrImportNotFound   = errors.New("import not found")
	ErrPropertyNotFound = errors.New("property not found")
)

// ImportState - состояние одного запуска импорта
type ImportState string

const (
	ImportStateIdle      ImportState = "idle"
	ImportStateParsing   ImportState = "parsing"
	ImportStateImporting ImportState = "importing"
	ImportStateDone      ImportState = "done"
	ImportStateError     ImportState = "error"
)

// IsTerminal - true для done и error
func (s ImportState) IsTerminal() bool {
	return s == ImportStateDone || s == ImportStateError
}

// ImportRequest описывает, что и откуда импортируется
type ImportRequest struct {
	ID       uuid.UUID
	Source   string // "upload", "url", "queue"
	FileName string
	FeedURL  string
}

// ImportEvent публикуется при каждом переходе состояния и после каждого чанка
type ImportEvent struct {
	ImportID  uuid.UUID   `json:"import_id"`
	Source    string      `json:"source"`
	State     ImportState `json:"state"`
	Processed int         `json:"processed"`
	Total     int         `json:"total"`
	Imported  int         `json:"imported"`
	Skipped   int         `json:"skipped"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ImportResult - итог выполнения Import Orchestrator
type ImportResult struct {
	ImportID  uuid.UUID
	State     ImportState
	Total     int
	Processed int
	Imported  int
	Skipped   int
	Chunks    int
	// Abandoned - импорт прерван остановкой сервиса на границе чанка
	Abandoned bool
}

// ImportRun - состояние запуска, которое хранит трекер
type ImportRun struct {
	ID         uuid.UUID   `json:"id"`
	Source     string      `json:"source"`
	State      ImportState `json:"state"`
	Processed  int         `json:"processed"`
	Total      int         `json:"total"`
	Imported   int         `json:"imported"`
	Skipped    int         `json:"skipped"`
	Message    string      `json:"message,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// SyncOutcome - результат одной отправки чанка в удаленное хранилище.
// Ошибка здесь информационная: локальный кэш от нее не откатывается.
type SyncOutcome struct {
	Records    int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK - true, если upsert прошел
func (o SyncOutcome) OK() bool {
	return o.Err == nil
}

// CacheChangeReason - почему изменился локальный кэш
type CacheChangeReason string

const (
	CacheChangeMerge   CacheChangeReason = "merge"
	CacheChangeReplace CacheChangeReason = "replace"
)

// CacheChange передается подписчикам кэша после каждого изменения
type CacheChange struct {
	Reason CacheChangeReason `json:"reason"`
	Keys   []string          `json:"keys"`
	Size   int               `json:"size"`
}
