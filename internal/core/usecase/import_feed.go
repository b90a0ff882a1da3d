package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ImportFeedUseCase - оркестратор импорта: parse -> normalize -> чанк -> кэш + удаленное хранилище
type ImportFeedUseCase struct {
	parser     port.FeedParserPort
	normalizer port.TextNormalizerPort
	cache      port.PropertyCachePort
	remote     port.RemoteSyncPort
	events     port.ImportEventsPort
	fetcher    port.FeedFetcherPort
	chunkSize  int
	now        func() time.Time

	// фоновые запуски останавливаются вместе с сервисом, а не с HTTP-запросом
	runsCtx    context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup
}

func NewImportFeedUseCase(
	parser port.FeedParserPort,
	normalizer port.TextNormalizerPort,
	cache port.PropertyCachePort,
	remote port.RemoteSyncPort,
	events port.ImportEventsPort,
	fetcher port.FeedFetcherPort,
	chunkSize int,
) *ImportFeedUseCase {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultImportChunkSize
	}
	runsCtx, cancel := context.WithCancel(context.Background())
	return &ImportFeedUseCase{
		parser:     parser,
		normalizer: normalizer,
		cache:      cache,
		remote:     remote,
		events:     events,
		fetcher:    fetcher,
		chunkSize:  chunkSize,
		now:        time.Now,
		runsCtx:    runsCtx,
		cancelRuns: cancel,
	}
}

// Execute импортирует уже полученный документ
func (uc *ImportFeedUseCase) Execute(ctx context.Context, req domain.ImportRequest, feed io.Reader) (*domain.ImportResult, error) {
	req = uc.withID(req)
	return uc.run(ctx, req, func(context.Context) (io.Reader, error) { return feed, nil })
}

// ExecuteFromURL скачивает фид по req.FeedURL и импортирует его.
// Ошибка скачивания - такой же полный провал, как неразбираемый документ.
func (uc *ImportFeedUseCase) ExecuteFromURL(ctx context.Context, req domain.ImportRequest) (*domain.ImportResult, error) {
	req = uc.withID(req)
	return uc.run(ctx, req, func(ctx context.Context) (io.Reader, error) {
		if uc.fetcher == nil {
			return nil, errors.New("feed fetching is not configured")
		}
		if req.FeedURL == "" {
			return nil, errors.New("feed url is empty")
		}
		data, err := uc.fetcher.FetchFeed(ctx, req.FeedURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch feed: %w", err)
		}
		return bytes.NewReader(data), nil
	})
}

// StartAsync публикует состояние idle синхронно, чтобы запуск был виден сразу,
// и выполняет импорт в отдельной горутине.
func (uc *ImportFeedUseCase) StartAsync(ctx context.Context, req domain.ImportRequest, feed io.Reader) uuid.UUID {
	req = uc.withID(req)
	uc.publish(ctx, req, domain.ImportEvent{State: domain.ImportStateIdle})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(uc.runsCtx, cancel)

	uc.runs.Add(1)
	go func() {
		defer uc.runs.Done()
		defer cancel()
		defer stop()

		logger := contextkeys.LoggerFromContext(runCtx)
		var err error
		if feed != nil {
			_, err = uc.Execute(runCtx, req, feed)
		} else {
			_, err = uc.ExecuteFromURL(runCtx, req)
		}
		if err != nil {
			logger.Warn("Background import failed", port.Fields{"import_id": req.ID.String(), "error": err.Error()})
		}
	}()

	return req.ID
}

// Shutdown прерывает фоновые импорты на границе чанка и ждет их завершения
func (uc *ImportFeedUseCase) Shutdown() {
	uc.cancelRuns()
	uc.runs.Wait()
}

func (uc *ImportFeedUseCase) withID(req domain.ImportRequest) domain.ImportRequest {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return req
}

func (uc *ImportFeedUseCase) run(ctx context.Context, req domain.ImportRequest, open func(context.Context) (io.Reader, error)) (*domain.ImportResult, error) {
	ucLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case":  "ImportFeed",
		"import_id": req.ID.String(),
		"source":    req.Source,
	})
	ctx = contextkeys.ContextWithLogger(ctx, ucLogger)

	result := &domain.ImportResult{ImportID: req.ID, State: domain.ImportStateParsing}
	uc.publish(ctx, req, domain.ImportEvent{State: domain.ImportStateParsing})

	doc, err := uc.openAndParse(ctx, open)
	if err != nil {
		ucLogger.Error("Import failed at parsing stage", err, nil)
		result.State = domain.ImportStateError
		uc.publish(ctx, req, domain.ImportEvent{State: domain.ImportStateError, Message: failureMessage(err)})
		return result, err
	}

	result.Total = doc.Len()
	result.State = domain.ImportStateImporting
	ucLogger.Info("Feed parsed, starting chunked import", port.Fields{"total": result.Total, "chunk_size": uc.chunkSize})
	uc.publish(ctx, req, progressEvent(result))

	chunk := make([]domain.Property, 0, uc.chunkSize)
	for i := 0; i < result.Total; i++ {
		if rec, ok := doc.Extract(ctx, i); ok {
			rec.Description = rec.Description.Map(uc.normalizer.Normalize)
			chunk = append(chunk, rec)
		} else {
			result.Skipped++
		}
		result.Processed = i + 1

		if len(chunk) < uc.chunkSize && result.Processed < result.Total {
			continue
		}

		uc.flush(ctx, chunk, result)
		uc.publish(ctx, req, progressEvent(result))
		chunk = make([]domain.Property, 0, uc.chunkSize)

		if ctx.Err() != nil && result.Processed < result.Total {
			result.Abandoned = true
			ucLogger.Warn("Import abandoned at chunk boundary", port.Fields{
				"processed": result.Processed,
				"total":     result.Total,
			})
			break
		}
		runtime.Gosched()
	}

	result.State = domain.ImportStateDone
	done := progressEvent(result)
	done.State = domain.ImportStateDone
	done.Message = fmt.Sprintf("Imported %d of %d properties", result.Imported, result.Total)
	if result.Abandoned {
		done.Message += " (stopped early)"
	}
	uc.publish(ctx, req, done)

	ucLogger.Info("Import finished", port.Fields{
		"total":     result.Total,
		"imported":  result.Imported,
		"skipped":   result.Skipped,
		"chunks":    result.Chunks,
		"abandoned": result.Abandoned,
	})
	return result, nil
}

func (uc *ImportFeedUseCase) openAndParse(ctx context.Context, open func(context.Context) (io.Reader, error)) (port.FeedDocument, error) {
	feed, err := open(ctx)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, errors.New("feed is empty")
	}
	return uc.parser.Parse(ctx, feed)
}

// flush: слияние в кэш и запуск синхронизации без ожидания результата
func (uc *ImportFeedUseCase) flush(ctx context.Context, chunk []domain.Property, result *domain.ImportResult) {
	if len(chunk) == 0 {
		return
	}
	uc.cache.MergeChunk(ctx, chunk)
	uc.remote.SyncChunk(ctx, chunk)
	result.Imported += len(chunk)
	result.Chunks++
}

func (uc *ImportFeedUseCase) publish(ctx context.Context, req domain.ImportRequest, event domain.ImportEvent) {
	if uc.events == nil {
		return
	}
	event.ImportID = req.ID
	event.Source = req.Source
	event.Timestamp = uc.now()
	uc.events.Publish(context.WithoutCancel(ctx), event)
}

func progressEvent(r *domain.ImportResult) domain.ImportEvent {
	return domain.ImportEvent{
		State:     r.State,
		Processed: r.Processed,
		Total:     r.Total,
		Imported:  r.Imported,
		Skipped:   r.Skipped,
	}
}

// failureMessage - текст ошибки для пользователя
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoFeedNodes):
		return "The feed contains no <property> or <item> elements"
	case errors.Is(err, domain.ErrMalformedFeed):
		return "The feed is not a well-formed XML document"
	default:
		return err.Error()
	}
}
