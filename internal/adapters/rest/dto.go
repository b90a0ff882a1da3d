package rest

import (
	"property-feed-service/internal/core/domain"

	"github.com/google/uuid"
)

type ImportFromURLRequest struct {
	URL string `json:"url"`
}

type ImportAcceptedResponse struct {
	ImportID  uuid.UUID `json:"import_id"`
	StatusURL string    `json:"status_url"`
}

type ImportsListResponse struct {
	Data  []domain.ImportRun `json:"data"`
	Total int                `json:"total"`
}

type PaginatedPropertiesResponse struct {
	Data   []domain.Property `json:"data"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type ReloadResponse struct {
	Reloaded int `json:"reloaded"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	CachedRecords int    `json:"cached_records"`
}
