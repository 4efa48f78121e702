package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"blsync/pkg/fetch"
	"blsync/pkg/logger"
	"blsync/pkg/source"
	"blsync/pkg/storage"
)

type Outcome string

const (
	OutcomeUploaded Outcome = "uploaded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Options describes one sync pass. No state survives a pass except what the
// destination store itself retains; that is what makes re-runs idempotent.
type Options struct {
	BaseURL     string
	Prefix      string
	Concurrency int
	Delete      bool
}

type Syncer struct {
	lister *source.Lister
	client *fetch.Client
	store  storage.ObjectStore
	logger *logger.Logger
	opts   Options
}

func New(lister *source.Lister, client *fetch.Client, store storage.ObjectStore, log *logger.Logger, opts Options) *Syncer {
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 8
	}
	return &Syncer{
		lister: lister,
		client: client,
		store:  store,
		logger: log,
		opts:   opts,
	}
}

// Result aggregates per-file outcomes for one pass. Membership is
// order-independent; files complete in whatever order the pool finishes
// them.
type Result struct {
	mu stdsync.Mutex

	Uploaded []string
	Skipped  []string
	Failed   []string
	Deleted  []string
	Reasons  map[string]string
	Duration time.Duration
}

func newResult() *Result {
	return &Result{Reasons: make(map[string]string)}
}

func (r *Result) record(name string, outcome Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch outcome {
	case OutcomeUploaded:
		r.Uploaded = append(r.Uploaded, name)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, name)
	case OutcomeFailed:
		r.Failed = append(r.Failed, name)
		if err != nil {
			r.Reasons[name] = err.Error()
		}
	}
}

// Run executes one full pass: a single listing snapshot, a bounded worker
// pool deciding and transferring each file, then optional reconciliation
// against the same snapshot. Only the index fetch is fatal; per-file
// failures land in Result.Failed.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	entries, err := s.lister.List(ctx, s.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("list remote index: %w", err)
	}

	result := newResult()

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			outcome, err := s.processFile(ctx, entry)
			if err != nil {
				s.logger.Error("file sync failed", err, map[string]any{
					"name": entry.Name,
					"url":  entry.URL,
				})
			}
			result.record(entry.Name, outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	if s.opts.Delete {
		currentNames := make(map[string]struct{}, len(entries))
		for name := range entries {
			currentNames[name] = struct{}{}
		}
		result.Deleted = s.reconcile(ctx, currentNames)
	}

	result.Duration = time.Since(started)

	s.logger.Info("sync pass complete", map[string]any{
		"base_url": s.opts.BaseURL,
		"prefix":   s.opts.Prefix,
		"uploaded": len(result.Uploaded),
		"skipped":  len(result.Skipped),
		"failed":   len(result.Failed),
		"deleted":  len(result.Deleted),
		"duration": result.Duration.String(),
	})

	return result, nil
}
