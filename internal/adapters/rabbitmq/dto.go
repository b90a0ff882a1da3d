package rabbitmq

import (
	"time"

	"github.com/google/uuid"
)

// ImportTaskDTO - команда на импорт фида по URL (схема ImportTaskEvent/1.0.0)
type ImportTaskDTO struct {
	TaskID   uuid.UUID `json:"task_id"`
	FeedURL  string    `json:"feed_url"`
	FileName string    `json:"file_name,omitempty"`
	Source   string    `json:"source,omitempty"`
}

// ImportStatusDTO - уведомление о ходе импорта (схема ImportStatusEvent/1.0.0)
type ImportStatusDTO struct {
	ImportID  uuid.UUID `json:"import_id"`
	Source    string    `json:"source,omitempty"`
	State     string    `json:"state"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
