package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blsync/pkg/fetch"
	"blsync/pkg/logger"
	"blsync/pkg/source"
	"blsync/pkg/storage"
)

// fakeStore is an in-memory ObjectStore for exercising full sync passes.
type fakeStore struct {
	mu      stdsync.Mutex
	objects map[string]*fakeObject

	headCalls map[string]int
	putCalls  map[string]int
	onHead    func(store *fakeStore, key string, call int)
	onGetTags func(key string) error
	onDelete  func(key string) error
}

type fakeObject struct {
	body     []byte
	metadata map[string]string
	tags     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   make(map[string]*fakeObject),
		headCalls: make(map[string]int),
		putCalls:  make(map[string]int),
	}
}

func (f *fakeStore) seed(key, content string, metadata, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &fakeObject{
		body:     []byte(content),
		metadata: metadata,
		tags:     tags,
	}
}

func (f *fakeStore) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	f.headCalls[key]++
	call := f.headCalls[key]
	hook := f.onHead
	f.mu.Unlock()

	if hook != nil {
		hook(f, key, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return &storage.ObjectInfo{Exists: false}, nil
	}

	sum := md5.Sum(obj.body)
	info := &storage.ObjectInfo{
		Exists:   true,
		Size:     int64(len(obj.body)),
		ETag:     hex.EncodeToString(sum[:]),
		Metadata: make(map[string]string, len(obj.metadata)),
	}
	for k, v := range obj.metadata {
		info.Metadata[k] = v
	}
	return info, nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, &storage.StorageError{Type: storage.ErrorTypeNotFound, Message: "object not found"}
	}
	return obj.body, nil
}

func (f *fakeStore) Put(_ context.Context, key string, body []byte, opts *storage.PutOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls[key]++
	if opts == nil {
		opts = &storage.PutOptions{}
	}
	f.objects[key] = &fakeObject{
		body:     body,
		metadata: opts.Metadata,
		tags:     opts.Tags,
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onDelete != nil {
		if err := f.onDelete(key); err != nil {
			return err
		}
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string, fn func(key string) error) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	f.mu.Unlock()

	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) GetTags(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onGetTags != nil {
		if err := f.onGetTags(key); err != nil {
			return nil, err
		}
	}
	obj, ok := f.objects[key]
	if !ok {
		return nil, &storage.StorageError{Type: storage.ErrorTypeNotFound, Message: "object not found"}
	}
	if obj.tags == nil {
		return map[string]string{}, nil
	}
	return obj.tags, nil
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                 { return nil }

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// testSource serves a directory index plus file contents the way a remote
// HTTP file index would.
type testSource struct {
	mu       stdsync.Mutex
	files    map[string]string
	failGet  map[string]bool
	failHead bool
}

const testLastModified = "Tue, 01 Jul 2025 10:00:00 GMT"

func newTestSource(files map[string]string) *testSource {
	return &testSource{
		files:   files,
		failGet: make(map[string]bool),
	}
}

func (ts *testSource) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		defer ts.mu.Unlock()

		name := r.URL.Path[1:]
		if name == "" {
			fmt.Fprint(w, `<html><body><a href="../">Parent</a><a href="subdir/">dir</a>`)
			for f := range ts.files {
				fmt.Fprintf(w, `<a href="%s">%s</a>`, f, f)
			}
			fmt.Fprint(w, `</body></html>`)
			return
		}

		content, ok := ts.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodHead && ts.failHead {
			http.Error(w, "head disabled", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodGet && ts.failGet[name] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Last-Modified", testLastModified)
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			return
		}
		fmt.Fprint(w, content)
	})
	return mux
}

func newTestSyncer(t *testing.T, baseURL string, store storage.ObjectStore, opts Options) *Syncer {
	t.Helper()
	log := logger.NewDefault()
	log.SetLevel(logger.LevelFatal)
	client := fetch.NewClient(fetch.ClientOptions{
		UserAgent: "blsync-test/1.0",
		Timeout:   5 * time.Second,
		Retry: fetch.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Retryable:   fetch.IsRetryable,
		},
		Logger: log,
	})
	lister := source.NewLister(client, log)
	opts.BaseURL = baseURL
	return New(lister, client, store, log, opts)
}

func TestSyncPassIdempotence(t *testing.T) {
	src := newTestSource(map[string]string{
		"pr.data.0.Current": "series_id\tyear\nPRS1\t2018\n",
		"pr.txt":            "mapping file",
	})
	server := httptest.NewServer(src.handler())
	defer server.Close()
	baseURL := server.URL + "/"

	store := newFakeStore()

	first, err := newTestSyncer(t, baseURL, store, Options{Prefix: "data/", Concurrency: 4}).Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pr.data.0.Current", "pr.txt"}, first.Uploaded)
	assert.Empty(t, first.Skipped)
	assert.Empty(t, first.Failed)

	obj := store.objects["data/pr.data.0.Current"]
	require.NotNil(t, obj)
	assert.Equal(t, TagSourceValue, obj.tags[TagSourceKey])
	assert.Equal(t, baseURL, obj.tags[TagBaseURLKey])
	assert.Equal(t, testLastModified, obj.metadata[MetaSourceLastModified])
	assert.NotEmpty(t, obj.metadata[MetaSourceMD5])

	second, err := newTestSyncer(t, baseURL, store, Options{Prefix: "data/", Concurrency: 4}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Uploaded)
	assert.ElementsMatch(t, []string{"pr.data.0.Current", "pr.txt"}, second.Skipped)
}

func TestPartialFailureIsolation(t *testing.T) {
	src := newTestSource(map[string]string{
		"a.txt": "alpha",
		"b.txt": "bravo",
		"c.txt": "charlie",
	})
	src.failGet["b.txt"] = true
	server := httptest.NewServer(src.handler())
	defer server.Close()

	store := newFakeStore()
	result, err := newTestSyncer(t, server.URL+"/", store, Options{Prefix: "data/", Concurrency: 2}).Run(context.Background())
	require.NoError(t, err, "per-file failure must not fail the pass")

	assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, result.Uploaded)
	assert.Equal(t, []string{"b.txt"}, result.Failed)
	assert.Contains(t, result.Reasons["b.txt"], "500")
	assert.False(t, store.has("data/b.txt"))
}

func TestReconciliationDeletesOnlyOwnedObjects(t *testing.T) {
	src := newTestSource(map[string]string{
		"keep.txt": "still here",
	})
	server := httptest.NewServer(src.handler())
	defer server.Close()
	baseURL := server.URL + "/"

	store := newFakeStore()
	ourTags := map[string]string{
		TagSourceKey:  TagSourceValue,
		TagBaseURLKey: baseURL,
	}
	store.seed("data/stale.txt", "gone upstream", nil, ourTags)
	store.seed("data/foreign.txt", "someone else's object", nil, nil)
	store.seed("data/other.txt", "synced from elsewhere", nil, map[string]string{
		TagSourceKey:  TagSourceValue,
		TagBaseURLKey: "http://other.example/pub/",
	})

	result, err := newTestSyncer(t, baseURL, store, Options{Prefix: "data/", Concurrency: 2, Delete: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"data/stale.txt"}, result.Deleted)
	assert.False(t, store.has("data/stale.txt"))
	assert.True(t, store.has("data/foreign.txt"), "untagged objects are out of jurisdiction")
	assert.True(t, store.has("data/other.txt"), "objects from another base URL are retained")
	assert.True(t, store.has("data/keep.txt"))
}

func TestReconciliationSkipsFailingObjects(t *testing.T) {
	src := newTestSource(map[string]string{
		"keep.txt": "still here",
	})
	server := httptest.NewServer(src.handler())
	defer server.Close()
	baseURL := server.URL + "/"

	store := newFakeStore()
	ourTags := map[string]string{
		TagSourceKey:  TagSourceValue,
		TagBaseURLKey: baseURL,
	}
	store.seed("data/stale-ok.txt", "gone upstream", nil, ourTags)
	store.seed("data/stale-tags.txt", "tags unreadable", nil, ourTags)
	store.seed("data/stale-locked.txt", "delete denied", nil, ourTags)

	store.onGetTags = func(key string) error {
		if key == "data/stale-tags.txt" {
			return &storage.StorageError{Type: storage.ErrorTypeNetworkError, Message: "tag fetch timeout"}
		}
		return nil
	}
	store.onDelete = func(key string) error {
		if key == "data/stale-locked.txt" {
			return &storage.StorageError{Type: storage.ErrorTypeAccessDenied, Message: "access denied"}
		}
		return nil
	}

	result, err := newTestSyncer(t, baseURL, store, Options{Prefix: "data/", Concurrency: 2, Delete: true}).Run(context.Background())
	require.NoError(t, err, "per-object reconciliation failures must not fail the pass")

	assert.Equal(t, []string{"data/stale-ok.txt"}, result.Deleted,
		"reconciliation continues past failing objects")
	assert.False(t, store.has("data/stale-ok.txt"))
	assert.True(t, store.has("data/stale-tags.txt"), "unreadable tags means no proof of ownership")
	assert.True(t, store.has("data/stale-locked.txt"), "a failed delete leaves the object in place")
	assert.True(t, store.has("data/keep.txt"))
}

func TestRecheckBeforeCommitSkipsConcurrentUpload(t *testing.T) {
	content := "racy content"
	sum := md5.Sum([]byte(content))

	src := newTestSource(map[string]string{
		"race.txt": content,
	})
	src.failHead = true // no cheap identity signals, forces a download
	server := httptest.NewServer(src.handler())
	defer server.Close()

	store := newFakeStore()
	// A concurrent writer lands identical content between the first
	// decision and the commit re-check.
	store.onHead = func(f *fakeStore, key string, call int) {
		if key == "data/race.txt" && call == 2 {
			f.seed(key, content, map[string]string{
				MetaSourceMD5: hex.EncodeToString(sum[:]),
			}, nil)
		}
	}

	result, err := newTestSyncer(t, server.URL+"/", store, Options{Prefix: "data/", Concurrency: 1}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"race.txt"}, result.Skipped)
	assert.Empty(t, result.Uploaded)
	assert.Zero(t, store.putCalls["data/race.txt"], "commit must be skipped when the re-check finds current content")
}
