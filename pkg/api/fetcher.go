package api

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"blsync/pkg/fetch"
	"blsync/pkg/logger"
	"blsync/pkg/storage"
	syncpkg "blsync/pkg/sync"
)

// Fetcher lands one JSON API dataset as line-delimited records in the
// destination store. One GET, one transform, one write.
type Fetcher struct {
	client *fetch.Client
	store  storage.ObjectStore
	logger *logger.Logger
	opts   Options
}

type Options struct {
	URL            string
	RecordsField   string
	DestinationKey string
}

func NewFetcher(client *fetch.Client, store storage.ObjectStore, log *logger.Logger, opts Options) *Fetcher {
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.RecordsField == "" {
		opts.RecordsField = "data"
	}
	return &Fetcher{
		client: client,
		store:  store,
		logger: log,
		opts:   opts,
	}
}

// Run fetches the dataset, converts the records array to JSONL, and writes
// it to the destination key. Returns the number of records landed.
func (f *Fetcher) Run(ctx context.Context) (int, error) {
	payload, err := f.client.Download(ctx, f.opts.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch dataset: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload.Body, &envelope); err != nil {
		return 0, fmt.Errorf("decode dataset response: %w", err)
	}

	raw, ok := envelope[f.opts.RecordsField]
	if !ok {
		return 0, fmt.Errorf("dataset response has no %q field", f.opts.RecordsField)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, fmt.Errorf("decode dataset records: %w", err)
	}

	var buf bytes.Buffer
	for _, record := range records {
		compact := bytes.Buffer{}
		if err := json.Compact(&compact, record); err != nil {
			return 0, fmt.Errorf("compact record: %w", err)
		}
		buf.Write(compact.Bytes())
		buf.WriteByte('\n')
	}

	body := buf.Bytes()
	sum := md5.Sum(body)

	opts := &storage.PutOptions{
		ContentType: "application/json",
		ContentMD5:  base64.StdEncoding.EncodeToString(sum[:]),
		Metadata: map[string]string{
			syncpkg.MetaSourceMD5: hex.EncodeToString(sum[:]),
			syncpkg.MetaSourceURL: f.opts.URL,
		},
		Tags: map[string]string{
			syncpkg.TagSourceKey:  syncpkg.TagSourceValue,
			syncpkg.TagBaseURLKey: f.opts.URL,
		},
	}
	if err := f.store.Put(ctx, f.opts.DestinationKey, body, opts); err != nil {
		return 0, fmt.Errorf("land dataset at %s: %w", f.opts.DestinationKey, err)
	}

	f.logger.Info("landed api dataset", map[string]any{
		"url":     f.opts.URL,
		"key":     f.opts.DestinationKey,
		"records": len(records),
		"bytes":   len(body),
	})

	return len(records), nil
}
