package sync

import (
	"context"
	"fmt"
	"strconv"

	"blsync/pkg/source"
	"blsync/pkg/storage"
)

// processFile decides and, if stale, transfers one remote file. Errors are
// returned to the pool runner, which records a failed outcome; they never
// abort the pass.
func (s *Syncer) processFile(ctx context.Context, entry source.FileEntry) (Outcome, error) {
	key := s.opts.Prefix + entry.Name

	obj, err := s.store.Head(ctx, key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("head %s: %w", key, err)
	}

	src := &SourceState{
		URL:           entry.URL,
		ContentLength: entry.ContentLength,
		LastModified:  entry.LastModified,
		ETag:          entry.ETag,
	}

	if isCurrent(obj, src) {
		s.logger.Debug("object current, skipping", map[string]any{
			"name": entry.Name,
			"key":  key,
		})
		return OutcomeSkipped, nil
	}

	payload, err := s.client.Download(ctx, entry.URL)
	if err != nil {
		return OutcomeFailed, err
	}

	src.MD5 = payload.MD5Hex
	src.ContentLength = strconv.FormatInt(payload.Length, 10)

	// Re-check against fresh destination state right before the commit.
	// A concurrent invocation may have uploaded identical content since
	// the first decision; the checksum comparison catches that.
	obj, err = s.store.Head(ctx, key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("head %s before commit: %w", key, err)
	}
	if isCurrent(obj, src) {
		s.logger.Debug("object became current during download, skipping", map[string]any{
			"name": entry.Name,
			"key":  key,
		})
		return OutcomeSkipped, nil
	}

	opts := &storage.PutOptions{
		ContentMD5: payload.MD5Base64,
		Metadata: map[string]string{
			MetaSourceMD5:          src.MD5,
			MetaSourceLength:       src.ContentLength,
			MetaSourceLastModified: src.LastModified,
			MetaSourceETag:         src.ETag,
			MetaSourceURL:          src.URL,
		},
		Tags: map[string]string{
			TagSourceKey:  TagSourceValue,
			TagBaseURLKey: s.opts.BaseURL,
		},
	}
	if err := s.store.Put(ctx, key, payload.Body, opts); err != nil {
		return OutcomeFailed, fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.Info("uploaded object", map[string]any{
		"name":  entry.Name,
		"key":   key,
		"url":   entry.URL,
		"bytes": payload.Length,
		"md5":   payload.MD5Hex,
	})

	return OutcomeUploaded, nil
}
