package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"property-feed-service/internal/adapters/feedparser"
	"property-feed-service/internal/adapters/localcache"
	"property-feed-service/internal/adapters/localstore"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemoteStore запоминает каждый upsert; err делает все вызовы неудачными
type fakeRemoteStore struct {
	mu      sync.Mutex
	err     error
	upserts [][]domain.Property
	rows    map[string]domain.Property
	recent  []domain.Property
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{rows: make(map[string]domain.Property)}
}

func (f *fakeRemoteStore) UpsertProperties(_ context.Context, records []domain.Property, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, records)
	if f.err != nil {
		return f.err
	}
	for _, rec := range records {
		f.rows[rec.Key()] = rec
	}
	return nil
}

func (f *fakeRemoteStore) FetchRecentProperties(_ context.Context, limit int) ([]domain.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeRemoteStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.ImportEvent
}

func (r *recordingEvents) Publish(_ context.Context, event domain.ImportEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) snapshot() []domain.ImportEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ImportEvent(nil), r.events...)
}

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) FetchFeed(context.Context, string) ([]byte, error) {
	return f.body, f.err
}

// stubDocument: nil в records означает узел, который не дал записи
type stubDocument struct {
	records []*domain.Property
}

func (d *stubDocument) Len() int { return len(d.records) }

func (d *stubDocument) Extract(_ context.Context, index int) (domain.Property, bool) {
	if d.records[index] == nil {
		return domain.Property{}, false
	}
	return *d.records[index], true
}

type stubParser struct {
	doc port.FeedDocument
}

func (p *stubParser) Parse(context.Context, io.Reader) (port.FeedDocument, error) {
	return p.doc, nil
}

type importFixture struct {
	uc     *ImportFeedUseCase
	cache  *localcache.PropertyCache
	remote *fakeRemoteStore
	sync   *RemoteSynchronizer
	events *recordingEvents
}

func newImportFixture(fetcher *fakeFetcher) *importFixture {
	cache := localcache.NewPropertyCache(localstore.NewMemoryStore(0), localcache.Config{})
	remote := newFakeRemoteStore()
	synchronizer := NewRemoteSynchronizer(remote, time.Second)
	events := &recordingEvents{}

	f := &importFixture{cache: cache, remote: remote, sync: synchronizer, events: events}
	var fetcherPort port.FeedFetcherPort
	if fetcher != nil {
		fetcherPort = fetcher
	}
	f.uc = NewImportFeedUseCase(
		feedparser.NewFeedParser(feedparser.Config{}),
		feedparser.NewTextNormalizer(),
		cache,
		synchronizer,
		events,
		fetcherPort,
		25,
	)
	return f
}

func buildFeed(n int, price float64) string {
	var b strings.Builder
	b.WriteString("<root>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<property><ref>P%d</ref><price>%.0f</price><desc><no>&lt;p&gt;Fin&amp;nbsp;bolig</no></desc></property>", i, price)
	}
	b.WriteString("</root>")
	return b.String()
}

func progressCounts(events []domain.ImportEvent) []int {
	var out []int
	for _, e := range events {
		if e.State == domain.ImportStateImporting && e.Processed > 0 {
			out = append(out, e.Processed)
		}
	}
	return out
}

func TestImportFeed_ChunkBoundaries(t *testing.T) {
	f := newImportFixture(nil)

	result, err := f.uc.Execute(context.Background(), domain.ImportRequest{Source: "upload"}, strings.NewReader(buildFeed(51, 1000)))
	require.NoError(t, err)
	f.sync.Wait()

	assert.Equal(t, domain.ImportStateDone, result.State)
	assert.Equal(t, 51, result.Total)
	assert.Equal(t, 51, result.Processed)
	assert.Equal(t, 51, result.Imported)
	assert.Equal(t, 3, result.Chunks)
	assert.False(t, result.Abandoned)

	events := f.events.snapshot()
	assert.Equal(t, []int{25, 50, 51}, progressCounts(events))
	last := events[len(events)-1]
	assert.Equal(t, domain.ImportStateDone, last.State)
	assert.Equal(t, 51, last.Total)
	assert.Equal(t, result.ImportID, last.ImportID)

	assert.Equal(t, 51, f.cache.Len())
	assert.Equal(t, 3, f.remote.upsertCount())
}

func TestImportFeed_StateSequence(t *testing.T) {
	f := newImportFixture(nil)

	_, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(buildFeed(3, 1)))
	require.NoError(t, err)
	f.sync.Wait()

	var states []domain.ImportState
	for _, e := range f.events.snapshot() {
		if len(states) == 0 || states[len(states)-1] != e.State {
			states = append(states, e.State)
		}
	}
	assert.Equal(t, []domain.ImportState{domain.ImportStateParsing, domain.ImportStateImporting, domain.ImportStateDone}, states)
}

func TestImportFeed_NormalizesDescriptions(t *testing.T) {
	f := newImportFixture(nil)
	feed := `<root><property><ref>N1</ref><desc lang="no">&lt;b&gt;Sol&lt;/b&gt;&amp;nbsp;og strand</desc></property></root>`

	_, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(feed))
	require.NoError(t, err)
	f.sync.Wait()

	rec, ok := f.cache.Get("N1")
	require.True(t, ok)
	assert.Equal(t, "Sol og strand", rec.Description.NO)
}

func TestImportFeed_ZeroNodes(t *testing.T) {
	f := newImportFixture(nil)
	var changes int
	f.cache.Subscribe(func(domain.CacheChange) { changes++ })

	result, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(`<root><listing/></root>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoFeedNodes))
	assert.Equal(t, domain.ImportStateError, result.State)

	assert.Equal(t, 0, f.cache.Len())
	assert.Equal(t, 0, changes)
	assert.Equal(t, 0, f.remote.upsertCount())

	events := f.events.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, domain.ImportStateError, last.State)
	assert.NotEmpty(t, last.Message)
}

func TestImportFeed_MalformedXML(t *testing.T) {
	f := newImportFixture(nil)

	result, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(`<root><property>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedFeed))
	assert.Equal(t, domain.ImportStateError, result.State)
	assert.Equal(t, 0, f.cache.Len())
}

func TestImportFeed_IdempotentReimport(t *testing.T) {
	f := newImportFixture(nil)
	feed := buildFeed(30, 500)

	_, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(feed))
	require.NoError(t, err)
	once := f.cache.GetAll()

	_, err = f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(feed))
	require.NoError(t, err)
	f.sync.Wait()

	assert.Equal(t, 30, f.cache.Len())
	assert.ElementsMatch(t, once, f.cache.GetAll())
}

func TestImportFeed_MergeReplace(t *testing.T) {
	f := newImportFixture(nil)
	feedA := `<root><property><ref>A</ref><price>100</price><town>Alpha</town></property>` +
		`<property><ref>S</ref><price>200</price><town>Shared</town></property></root>`
	feedB := `<root><property><ref>S</ref><price>999</price><town>Shared</town></property></root>`

	_, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(feedA))
	require.NoError(t, err)
	_, err = f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(feedB))
	require.NoError(t, err)
	f.sync.Wait()

	assert.Equal(t, 2, f.cache.Len())
	shared, _ := f.cache.Get("S")
	assert.Equal(t, 999.0, shared.Price)
	a, _ := f.cache.Get("A")
	assert.Equal(t, 100.0, a.Price)
	assert.Equal(t, "Alpha", a.Town)
}

func TestImportFeed_RemoteFailureKeepsCache(t *testing.T) {
	f := newImportFixture(nil)
	f.remote.err = errors.New("connection refused")

	result, err := f.uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(buildFeed(5, 10)))
	require.NoError(t, err)
	f.sync.Wait()

	assert.Equal(t, domain.ImportStateDone, result.State)
	assert.Equal(t, 5, f.cache.Len())
	assert.Equal(t, 1, f.remote.upsertCount())
}

func TestImportFeed_SkippedNodes(t *testing.T) {
	f := newImportFixture(nil)
	uc := NewImportFeedUseCase(&stubParser{doc: &stubDocument{records: []*domain.Property{
		{ExternalID: "ok-1"}, nil, {ExternalID: "ok-2"},
	}}}, feedparser.NewTextNormalizer(), f.cache, f.sync, f.events, nil, 2)

	result, err := uc.Execute(context.Background(), domain.ImportRequest{}, strings.NewReader(""))
	require.NoError(t, err)
	f.sync.Wait()

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, f.cache.Len())
}

func TestImportFeed_AbandonedOnCancel(t *testing.T) {
	f := newImportFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())

	f.cache.Subscribe(func(domain.CacheChange) { cancel() })

	result, err := f.uc.Execute(ctx, domain.ImportRequest{}, strings.NewReader(buildFeed(60, 1)))
	require.NoError(t, err)
	f.sync.Wait()

	assert.True(t, result.Abandoned)
	assert.Equal(t, domain.ImportStateDone, result.State)
	assert.Equal(t, 25, result.Processed)
	assert.Equal(t, 25, f.cache.Len(), "the completed chunk stays in the cache")
}

func TestImportFeed_FromURL(t *testing.T) {
	t.Run("fetched feed is imported", func(t *testing.T) {
		f := newImportFixture(&fakeFetcher{body: []byte(buildFeed(2, 1))})
		result, err := f.uc.ExecuteFromURL(context.Background(), domain.ImportRequest{FeedURL: "https://feeds.example.com/redsp.xml"})
		require.NoError(t, err)
		f.sync.Wait()
		assert.Equal(t, 2, result.Imported)
	})

	t.Run("fetch failure is a total failure", func(t *testing.T) {
		f := newImportFixture(&fakeFetcher{err: errors.New("status 404")})
		result, err := f.uc.ExecuteFromURL(context.Background(), domain.ImportRequest{FeedURL: "https://feeds.example.com/missing.xml"})
		require.Error(t, err)
		assert.Equal(t, domain.ImportStateError, result.State)
		assert.Equal(t, 0, f.cache.Len())
	})

	t.Run("no fetcher configured", func(t *testing.T) {
		f := newImportFixture(nil)
		_, err := f.uc.ExecuteFromURL(context.Background(), domain.ImportRequest{FeedURL: "https://feeds.example.com/a.xml"})
		require.Error(t, err)
	})
}

func TestImportFeed_StartAsync(t *testing.T) {
	f := newImportFixture(nil)

	ctx, cancel := context.WithCancel(context.Background())
	id := f.uc.StartAsync(ctx, domain.ImportRequest{Source: "upload"}, strings.NewReader(buildFeed(3, 1)))
	// отмена HTTP-запроса не прерывает фоновый импорт
	cancel()

	events := f.events.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.ImportStateIdle, events[0].State)
	assert.Equal(t, id, events[0].ImportID)

	f.uc.Shutdown()
	f.sync.Wait()

	events = f.events.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, domain.ImportStateDone, last.State)
	assert.Equal(t, id, last.ImportID)
	assert.Equal(t, 3, f.cache.Len())
}
