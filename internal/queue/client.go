package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

type Options struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

type Client struct {
	client *asynq.Client
	opts   Options
}

func NewClient(redisOpt asynq.RedisClientOpt, opts Options) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return &Client{
		client: asynq.NewClient(redisOpt),
		opts:   opts,
	}
}

func (c *Client) EnqueueRender(ctx context.Context, payload RenderPayload) (*asynq.TaskInfo, error) {
	task, err := NewRenderTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, c.options()...)
}

// EnqueueVariants returns a nil TaskInfo and no error when generation for the
// same source is already pending.
func (c *Client) EnqueueVariants(ctx context.Context, payload VariantsPayload) (*asynq.TaskInfo, error) {
	task, err := NewVariantsTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task, c.options(asynq.TaskID(VariantsTaskID(payload.SourceKey)))...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, nil
	}
	return info, err
}

func (c *Client) options(extra ...asynq.Option) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
	}
	return append(opts, extra...)
}

func (c *Client) Close() error {
	return c.client.Close()
}
