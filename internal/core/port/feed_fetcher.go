package port

import "context"

// FeedFetcherPort скачивает документ фида по URL
type FeedFetcherPort interface {
	FetchFeed(ctx context.Context, feedURL string) ([]byte, error)
}
