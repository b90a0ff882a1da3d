package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"property-feed-service/internal/adapters/notifier"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"property-feed-service/internal/core/port/usecases_port"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const sseKeepAliveInterval = 15 * time.Second

// eventHub - подписка SSE-клиентов (реализуется notifier.SSENotifier)
type eventHub interface {
	AddClient() notifier.ClientChannel
	RemoveClient(ch notifier.ClientChannel)
}

type cacheStats interface {
	Len() int
}

type FeedHandler struct {
	importUC       usecases_port.ImportFeedPort
	getImportsUC   usecases_port.GetImportsPort
	propertiesUC   usecases_port.GetPropertiesPort
	reloadUC       usecases_port.ReloadFromRemotePort
	hub            eventHub
	cache          cacheStats
	maxUploadBytes int64
}

func NewFeedHandler(
	importUC usecases_port.ImportFeedPort,
	getImportsUC usecases_port.GetImportsPort,
	propertiesUC usecases_port.GetPropertiesPort,
	reloadUC usecases_port.ReloadFromRemotePort,
	hub eventHub,
	cache cacheStats,
	maxUploadBytes int64,
) *FeedHandler {
	return &FeedHandler{
		importUC:       importUC,
		getImportsUC:   getImportsUC,
		propertiesUC:   propertiesUC,
		reloadUC:       reloadUC,
		hub:            hub,
		cache:          cache,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadFeed - POST /api/v1/imports: multipart-поле "file" или XML в теле запроса.
// Документ читается целиком до ответа, импорт идет в фоне.
func (h *FeedHandler) UploadFeed(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "UploadFeed"})

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	data, fileName, err := readFeedBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("Feed upload exceeds size limit", port.Fields{"limit_bytes": tooLarge.Limit})
			WriteJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Feed is larger than %d bytes", tooLarge.Limit))
			return
		}
		logger.Warn("Failed to read uploaded feed", port.Fields{"error": err.Error()})
		WriteJSONError(w, http.StatusBadRequest, "Could not read the uploaded feed")
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "Feed document is empty")
		return
	}

	req := domain.ImportRequest{Source: constants.ImportSourceUpload, FileName: fileName}
	importID := h.importUC.StartAsync(r.Context(), req, bytes.NewReader(data))

	logger.Info("Feed upload accepted", port.Fields{
		"import_id": importID.String(),
		"file_name": fileName,
		"bytes":     len(data),
	})
	RespondWithJSON(w, http.StatusAccepted, acceptedResponse(importID))
}

func readFeedBody(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, r.URL.Query().Get("name"), err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	return data, header.Filename, err
}

// ImportFromURL - POST /api/v1/imports/from-url
func (h *FeedHandler) ImportFromURL(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "ImportFromURL"})

	var body ImportFromURLRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("Failed to decode import request body", port.Fields{"error": err.Error()})
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !isHTTPURL(body.URL) {
		WriteJSONError(w, http.StatusBadRequest, "Field 'url' must be an absolute http(s) URL")
		return
	}

	req := domain.ImportRequest{Source: constants.ImportSourceURL, FeedURL: body.URL}
	importID := h.importUC.StartAsync(r.Context(), req, nil)

	logger.Info("Import from URL accepted", port.Fields{"import_id": importID.String(), "url": body.URL})
	RespondWithJSON(w, http.StatusAccepted, acceptedResponse(importID))
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func acceptedResponse(id uuid.UUID) ImportAcceptedResponse {
	return ImportAcceptedResponse{ImportID: id, StatusURL: "/api/v1/imports/" + id.String()}
}

func (h *FeedHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	runs, err := h.getImportsUC.List(r.Context())
	if err != nil {
		contextkeys.LoggerFromContext(r.Context()).Error("ListImports use case failed", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "Failed to retrieve imports")
		return
	}
	RespondWithJSON(w, http.StatusOK, ImportsListResponse{Data: runs, Total: len(runs)})
}

func (h *FeedHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "GetImport"})

	importID, err := uuid.Parse(chi.URLParam(r, "importID"))
	if err != nil {
		logger.Warn("Invalid import ID format in URL", port.Fields{"provided_id": chi.URLParam(r, "importID")})
		WriteJSONError(w, http.StatusBadRequest, "Invalid import ID in URL")
		return
	}

	run, err := h.getImportsUC.GetByID(r.Context(), importID)
	if err != nil {
		if errors.Is(err, domain.ErrImportNotFound) {
			WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("GetImport use case failed", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "Failed to retrieve import")
		return
	}
	RespondWithJSON(w, http.StatusOK, run)
}

func (h *FeedHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "ListProperties"})

	limit, err := GetLimitOrDefault(r)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := GetOffsetOrDefault(r)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, total, err := h.propertiesUC.List(r.Context(), limit, offset)
	if err != nil {
		logger.Error("ListProperties use case failed", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "Failed to retrieve properties")
		return
	}
	RespondWithJSON(w, http.StatusOK, PaginatedPropertiesResponse{
		Data:   records,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *FeedHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	record, err := h.propertiesUC.GetByRef(r.Context(), ref)
	if err != nil {
		if errors.Is(err, domain.ErrPropertyNotFound) {
			WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		contextkeys.LoggerFromContext(r.Context()).Error("GetProperty use case failed", err, port.Fields{"ref": ref})
		WriteJSONError(w, http.StatusInternalServerError, "Failed to retrieve property")
		return
	}
	RespondWithJSON(w, http.StatusOK, record)
}

// ReloadFromRemote - POST /api/v1/properties/reload. При ошибке кэш остается прежним.
func (h *FeedHandler) ReloadFromRemote(w http.ResponseWriter, r *http.Request) {
	n, err := h.reloadUC.Execute(r.Context())
	if err != nil {
		WriteJSONError(w, http.StatusBadGateway, "Remote store is unavailable, local cache kept")
		return
	}
	RespondWithJSON(w, http.StatusOK, ReloadResponse{Reloaded: n})
}

func (h *FeedHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.cache != nil {
		resp.CachedRecords = h.cache.Len()
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

// SubscribeToEvents - GET /api/v1/events, поток SSE с событиями импорта и кэша
func (h *FeedHandler) SubscribeToEvents(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "SubscribeToEvents"})

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteJSONError(w, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := h.hub.AddClient()
	defer h.hub.RemoveClient(clientChan)

	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-clientChan:
			if _, err := w.Write(data); err != nil {
				logger.Warn("Error writing to SSE client, closing connection", port.Fields{"error": err.Error()})
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// строки с ":" - комментарии SSE, браузер держит соединение и игнорирует их
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			logger.Debug("SSE client disconnected", nil)
			return
		}
	}
}
