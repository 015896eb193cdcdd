package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"standards-archive/models"
)

const (
	// TaskConvertDocument carries one conversion job from the API to the
	// worker daemon.
	TaskConvertDocument = "convert:document"

	// QueueConversions is the asynq queue all conversion tasks go through.
	QueueConversions = "conversions"
)

// ConvertPayload is the task body for TaskConvertDocument. The working
// file is already staged and leased by the dispatching supervisor.
type ConvertPayload struct {
	DocumentID  string              `json:"document_id"`
	WorkingFile string              `json:"working_file"`
	Meta        models.DocumentMeta `json:"metadata"`
	Fallback    bool                `json:"fallback"`
}

// NewConvertTask builds a conversion task. Conversion failures are never
// retried automatically, so MaxRetry is zero; the task timeout covers the
// watchdog budget plus the persistence grace.
func NewConvertTask(payload ConvertPayload, timeout time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskConvertDocument,
		body,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue(QueueConversions),
	), nil
}

// Client wraps the asynq client behind the narrow interface the
// supervisor dispatches through.
type Client struct {
	inner   *asynq.Client
	timeout time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, taskTimeout time.Duration) *Client {
	return &Client{
		inner:   asynq.NewClient(redisOpt),
		timeout: taskTimeout,
	}
}

// EnqueueConvert submits one conversion job; it returns as soon as the
// task is durably queued.
func (c *Client) EnqueueConvert(ctx context.Context, payload ConvertPayload) error {
	task, err := NewConvertTask(payload, c.timeout)
	if err != nil {
		return err
	}
	_, err = c.inner.EnqueueContext(ctx, task)
	return err
}

func (c *Client) Close() error {
	return c.inner.Close()
}
