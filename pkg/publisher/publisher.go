package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"blsync/pkg/config"
	"blsync/pkg/logger"
	"blsync/pkg/task"
)

type Publisher struct {
	client *asynq.Client
	config *config.Config
}

func NewPublisher(config *config.Config) (*Publisher, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	}

	return &Publisher{
		client: asynq.NewClient(redisOpt),
		config: config,
	}, nil
}

func (p *Publisher) Close() {
	_ = p.client.Close()
}

func (p *Publisher) PublishSyncPass(payload *task.SyncPassPayload) error {
	if payload == nil {
		payload = &task.SyncPassPayload{}
	}
	return p.enqueue(task.TaskTypeSyncPass, payload)
}

func (p *Publisher) PublishAPIFetch(payload *task.APIFetchPayload) error {
	if payload == nil {
		payload = &task.APIFetchPayload{}
	}
	return p.enqueue(task.TaskTypeAPIFetch, payload)
}

func (p *Publisher) enqueue(taskType string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	info, err := p.client.Enqueue(
		asynq.NewTask(taskType, payloadBytes),
		asynq.MaxRetry(p.config.Daemon.MaxRetry),
		asynq.Timeout(time.Duration(p.config.Daemon.TimeoutMins)*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	logger.Info("task enqueued", map[string]any{
		"task_id": info.ID,
		"queue":   info.Queue,
		"type":    taskType,
	})
	return nil
}
