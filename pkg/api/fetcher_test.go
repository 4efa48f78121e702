package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blsync/pkg/fetch"
	"blsync/pkg/logger"
	"blsync/pkg/storage"
	syncpkg "blsync/pkg/sync"
)

type memStore struct {
	objects map[string][]byte
	puts    map[string]*storage.PutOptions
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		puts:    make(map[string]*storage.PutOptions),
	}
}

func (m *memStore) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	if _, ok := m.objects[key]; !ok {
		return &storage.ObjectInfo{Exists: false}, nil
	}
	return &storage.ObjectInfo{Exists: true, Size: int64(len(m.objects[key]))}, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, &storage.StorageError{Type: storage.ErrorTypeNotFound, Message: "object not found"}
	}
	return body, nil
}

func (m *memStore) Put(_ context.Context, key string, body []byte, opts *storage.PutOptions) error {
	m.objects[key] = body
	m.puts[key] = opts
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStore) List(_ context.Context, prefix string, fn func(key string) error) error {
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			if err := fn(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memStore) GetTags(_ context.Context, key string) (map[string]string, error) {
	opts, ok := m.puts[key]
	if !ok || opts == nil {
		return map[string]string{}, nil
	}
	return opts.Tags, nil
}

func (m *memStore) Ping(_ context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

func newTestFetcher(t *testing.T, url string, store storage.ObjectStore, opts Options) *Fetcher {
	t.Helper()
	log := logger.NewDefault()
	log.SetLevel(logger.LevelFatal)
	client := fetch.NewClient(fetch.ClientOptions{
		UserAgent: "blsync-test/1.0",
		Timeout:   5 * time.Second,
		Retry: fetch.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			Retryable:   fetch.IsRetryable,
		},
		Logger: log,
	})
	opts.URL = url
	return NewFetcher(client, store, log, opts)
}

func TestFetcherLandsJSONL(t *testing.T) {
	response := `{
		"source": "https://datausa.io/about/api/",
		"data": [
			{"ID Nation": "01000US", "Nation": "United States", "Year": 2018, "Population": 327167439},
			{"ID Nation": "01000US", "Nation": "United States", "Year": 2017, "Population": 325719178}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	store := newMemStore()
	fetcher := newTestFetcher(t, server.URL, store, Options{DestinationKey: "api/population.jsonl"})

	count, err := fetcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	body := store.objects["api/population.jsonl"]
	require.NotNil(t, body)

	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"ID Nation":"01000US","Nation":"United States","Year":2018,"Population":327167439}`, lines[0])
	assert.Equal(t, `{"ID Nation":"01000US","Nation":"United States","Year":2017,"Population":325719178}`, lines[1])
	assert.True(t, strings.HasSuffix(string(body), "\n"), "every record line is newline terminated")

	opts := store.puts["api/population.jsonl"]
	require.NotNil(t, opts)
	assert.Equal(t, "application/json", opts.ContentType)
	assert.NotEmpty(t, opts.ContentMD5)
	assert.NotEmpty(t, opts.Metadata[syncpkg.MetaSourceMD5])
	assert.Equal(t, server.URL, opts.Metadata[syncpkg.MetaSourceURL])
	assert.Equal(t, syncpkg.TagSourceValue, opts.Tags[syncpkg.TagSourceKey])
}

func TestFetcherEmptyRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	store := newMemStore()
	fetcher := newTestFetcher(t, server.URL, store, Options{DestinationKey: "api/empty.jsonl"})

	count, err := fetcher.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, store.objects["api/empty.jsonl"], "an empty dataset lands as an empty object")
	assert.Contains(t, store.objects, "api/empty.jsonl")
}

func TestFetcherMissingRecordsField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL, newMemStore(), Options{DestinationKey: "api/x.jsonl"})
	_, err := fetcher.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"data"`)
}

func TestFetcherCustomRecordsField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results": [{"a": 1}]}`)
	}))
	defer server.Close()

	store := newMemStore()
	fetcher := newTestFetcher(t, server.URL, store, Options{
		RecordsField:   "results",
		DestinationKey: "api/custom.jsonl",
	})

	count, err := fetcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "{\"a\":1}\n", string(store.objects["api/custom.jsonl"]))
}
