package feedfetcher

import (
	"context"
	"errors"
	"fmt"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/port"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxBodySize = 50 * 1024 * 1024
)

// ErrFeedTooLarge - colly обрезает тело по MaxBodySize, обрезанный XML разбирать нельзя
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// Config - параметры скачивания фидов
type Config struct {
	Timeout     time.Duration
	MaxBodySize int // байт
}

// FeedFetcherAdapter скачивает XML-фиды партнеров через colly
type FeedFetcherAdapter struct {
	// родительский коллектор: лимиты и User-Agent наследуются клонами
	collector   *colly.Collector
	maxBodySize int
}

func NewFeedFetcherAdapter(cfg Config) (*FeedFetcherAdapter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.SetRequestTimeout(cfg.Timeout)

	// не больше двух одновременных скачиваний с одного хоста
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2}); err != nil {
		return nil, fmt.Errorf("FeedFetcherAdapter: failed to set limit rule: %w", err)
	}
	extensions.RandomUserAgent(c)

	return &FeedFetcherAdapter{collector: c, maxBodySize: cfg.MaxBodySize}, nil
}

// FetchFeed реализует FeedFetcherPort
func (a *FeedFetcherAdapter) FetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "FeedFetcherAdapter",
		"url":       feedURL,
	})

	collector := a.collector.Clone()

	var body []byte
	var fetchErr error

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.5")
	})

	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		logger.Error("Failed to fetch feed", err, port.Fields{"status": r.StatusCode})
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", feedURL, r.StatusCode, err)
	})

	started := time.Now()
	if err := collector.Visit(feedURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, errors.New("feed response body is empty")
	}
	if len(body) >= a.maxBodySize {
		logger.Warn("Feed body reached the size limit and was truncated", port.Fields{"limit_bytes": a.maxBodySize})
		return nil, fmt.Errorf("fetch %s: %w (%d bytes)", feedURL, ErrFeedTooLarge, a.maxBodySize)
	}

	logger.Info("Feed downloaded", port.Fields{
		"bytes":       len(body),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return body, nil
}
