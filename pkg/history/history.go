package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"blsync/pkg/task"
)

const (
	historyKey  = "blsync:pass_history"
	historySize = 50
)

// Store keeps a bounded ring of recent pass summaries in redis so the
// daemon's status endpoint can report what the pipeline has been doing.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Record(ctx context.Context, summary *task.PassSummary) error {
	if s.client == nil {
		return nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal pass summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, historySize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record pass summary: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, n int64) ([]task.PassSummary, error) {
	if s.client == nil {
		return nil, nil
	}
	if n <= 0 || n > historySize {
		n = historySize
	}

	raw, err := s.client.LRange(ctx, historyKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read pass history: %w", err)
	}

	summaries := make([]task.PassSummary, 0, len(raw))
	for _, item := range raw {
		var summary task.PassSummary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
