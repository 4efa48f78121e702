package sync

import (
	"context"
	"strings"
)

// reconcile removes destination objects under the prefix whose name no
// longer appears in the remote listing. Only objects carrying this tool's
// provenance tags for this exact base URL are eligible; anything else under
// the prefix was not created by us and is left untouched. Per-object
// failures are logged and skipped.
func (s *Syncer) reconcile(ctx context.Context, currentNames map[string]struct{}) []string {
	var deleted []string

	err := s.store.List(ctx, s.opts.Prefix, func(key string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := strings.TrimPrefix(key, s.opts.Prefix)
		if name == "" {
			return nil
		}
		if _, present := currentNames[name]; present {
			return nil
		}

		tags, err := s.store.GetTags(ctx, key)
		if err != nil {
			s.logger.Error("failed to fetch tags, leaving object alone", err, map[string]any{
				"key": key,
			})
			return nil
		}
		if tags[TagSourceKey] != TagSourceValue || tags[TagBaseURLKey] != s.opts.BaseURL {
			s.logger.Debug("object lacks matching provenance tags, not ours to delete", map[string]any{
				"key": key,
			})
			return nil
		}

		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error("failed to delete removed object", err, map[string]any{
				"key": key,
			})
			return nil
		}

		s.logger.Info("deleted removed object", map[string]any{
			"key":      key,
			"base_url": s.opts.BaseURL,
		})
		deleted = append(deleted, key)
		return nil
	})
	if err != nil {
		s.logger.Error("reconciliation walk aborted", err, map[string]any{
			"prefix": s.opts.Prefix,
		})
	}

	return deleted
}
