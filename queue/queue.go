package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/healthops/health"
)

// DefaultMaxBacklog is the depth at which a queue reports degraded.
const DefaultMaxBacklog = 1000

var (
	// ErrInvalidJob is returned when enqueuing a job without a kind.
	ErrInvalidJob = errors.New("queue: job kind is required")

	// ErrMalformedJob is returned when a dequeued entry cannot be decoded.
	ErrMalformedJob = errors.New("queue: malformed job")
)

// Job is a unit of queued work.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Config configures a RedisQueue.
type Config struct {
	// Name identifies the queue in health reports. Default: "job-queue".
	Name string

	// Key is the Redis list key. Default: "healthd:jobs".
	Key string

	// MaxBacklog marks the queue degraded at or above this depth.
	// Default: DefaultMaxBacklog
	MaxBacklog int64

	// MaxLen caps the list. When positive, every Enqueue trims the oldest
	// entries so at most MaxLen remain. Zero leaves the list unbounded.
	MaxLen int64
}

// RedisQueue is a FIFO queue on a Redis list. Jobs are pushed on the left
// and popped from the right.
type RedisQueue struct {
	client *redis.Client
	config Config
	now    func() time.Time
}

var _ health.Checker = (*RedisQueue)(nil)

// New creates a queue on client.
func New(client *redis.Client, config Config) *RedisQueue {
	if config.Name == "" {
		config.Name = "job-queue"
	}
	if config.Key == "" {
		config.Key = "healthd:jobs"
	}
	if config.MaxBacklog <= 0 {
		config.MaxBacklog = DefaultMaxBacklog
	}
	return &RedisQueue{client: client, config: config, now: time.Now}
}

// Enqueue appends a job and returns it with its ID and timestamp set.
func (q *RedisQueue) Enqueue(ctx context.Context, kind string, payload any) (Job, error) {
	if kind == "" {
		return Job{}, ErrInvalidJob
	}
	job := Job{ID: uuid.NewString(), Kind: kind, EnqueuedAt: q.now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("queue: encode payload: %w", err)
		}
		job.Payload = raw
	}

	data, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("queue: encode job: %w", err)
	}
	if q.config.MaxLen > 0 {
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, q.config.Key, data)
			pipe.LTrim(ctx, q.config.Key, 0, q.config.MaxLen-1)
			return nil
		})
	} else {
		err = q.client.LPush(ctx, q.config.Key, data).Err()
	}
	if err != nil {
		return Job{}, fmt.Errorf("queue: enqueue: %w", err)
	}
	return job, nil
}

// Dequeue removes the oldest job. With wait > 0 it blocks up to wait for a
// job to arrive; otherwise it returns immediately. ok is false when the
// queue is empty.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (job Job, ok bool, err error) {
	var data string
	if wait > 0 {
		res, err := q.client.BRPop(ctx, wait, q.config.Key).Result()
		if errors.Is(err, redis.Nil) {
			return Job{}, false, nil
		}
		if err != nil {
			return Job{}, false, fmt.Errorf("queue: dequeue: %w", err)
		}
		data = res[1]
	} else {
		data, err = q.client.RPop(ctx, q.config.Key).Result()
		if errors.Is(err, redis.Nil) {
			return Job{}, false, nil
		}
		if err != nil {
			return Job{}, false, fmt.Errorf("queue: dequeue: %w", err)
		}
	}

	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return Job{}, false, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return job, true, nil
}

// Depth returns the number of pending jobs.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.config.Key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth: %w", err)
	}
	return n, nil
}

// Name implements health.Checker.
func (q *RedisQueue) Name() string {
	return q.config.Name
}

// Check implements health.Checker.
func (q *RedisQueue) Check(ctx context.Context) health.Result {
	depth, err := q.Depth(ctx)
	if err != nil {
		return health.Unhealthy("queue unreachable", err).WithDetails(map[string]any{
			"key": q.config.Key,
		})
	}

	details := map[string]any{
		"key":        q.config.Key,
		"depth":      depth,
		"maxBacklog": q.config.MaxBacklog,
	}
	if depth >= q.config.MaxBacklog {
		return health.Degraded("backlog pressure").WithDetails(details)
	}
	return health.Healthy("queue reachable").WithDetails(details)
}
