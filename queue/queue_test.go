package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/healthops/health"
)

func newTestQueue(t *testing.T, cfg Config) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, cfg)
}

func TestRedisQueue_FIFO(t *testing.T) {
	_, q := newTestQueue(t, Config{})
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "refresh-price", map[string]string{"asset": "bitcoin"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "refresh-price", map[string]string{"asset": "ethereum"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, depth)

	got, ok, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "refresh-price", got.Kind)
	assert.JSONEq(t, `{"asset":"bitcoin"}`, string(got.Payload))
}

func TestRedisQueue_DequeueEmpty(t *testing.T) {
	_, q := newTestQueue(t, Config{})

	_, ok, err := q.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisQueue_DequeueWaitsForJob(t *testing.T) {
	_, q := newTestQueue(t, Config{})
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = q.Enqueue(ctx, "late", nil)
	}()

	got, ok, err := q.Dequeue(ctx, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", got.Kind)
}

func TestRedisQueue_EnqueueRequiresKind(t *testing.T) {
	_, q := newTestQueue(t, Config{})
	_, err := q.Enqueue(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestRedisQueue_MalformedEntry(t *testing.T) {
	mr, q := newTestQueue(t, Config{Key: "jobs"})
	_, err := mr.Lpush("jobs", "not json")
	require.NoError(t, err)

	_, _, err = q.Dequeue(context.Background(), 0)
	assert.ErrorIs(t, err, ErrMalformedJob)
}

func TestRedisQueue_MaxLenKeepsNewest(t *testing.T) {
	_, q := newTestQueue(t, Config{Key: "healthd:transitions", MaxLen: 3})
	ctx := context.Background()

	for _, kind := range []string{"a", "b", "c", "d", "e"} {
		_, err := q.Enqueue(ctx, kind, nil)
		require.NoError(t, err)
	}

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, depth)

	var kinds []string
	for {
		job, ok, err := q.Dequeue(ctx, 0)
		require.NoError(t, err)
		if !ok {
			break
		}
		kinds = append(kinds, job.Kind)
	}
	assert.Equal(t, []string{"c", "d", "e"}, kinds)
}

func TestRedisQueue_Check(t *testing.T) {
	tests := []struct {
		name    string
		backlog int
		breakFn func(mr *miniredis.Miniredis)
		want    health.Status
		message string
	}{
		{name: "healthy", backlog: 2, want: health.StatusHealthy, message: "queue reachable"},
		{name: "backlog at limit", backlog: 3, want: health.StatusDegraded, message: "backlog pressure"},
		{name: "unreachable", breakFn: func(mr *miniredis.Miniredis) { mr.Close() }, want: health.StatusUnhealthy, message: "queue unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, q := newTestQueue(t, Config{Name: "jobs", MaxBacklog: 3})
			ctx := context.Background()
			for i := 0; i < tt.backlog; i++ {
				_, err := q.Enqueue(ctx, "refresh-price", nil)
				require.NoError(t, err)
			}
			if tt.breakFn != nil {
				tt.breakFn(mr)
			}

			res := q.Check(ctx)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.message, res.Message)
			if tt.want != health.StatusUnhealthy {
				assert.EqualValues(t, tt.backlog, res.Details["depth"])
			}
		})
	}
}

func TestRedisQueue_DegradedOutcomeCarriesReason(t *testing.T) {
	_, q := newTestQueue(t, Config{MaxBacklog: 1})
	_, err := q.Enqueue(context.Background(), "refresh-price", nil)
	require.NoError(t, err)

	out := health.FromChecker(q).Run(context.Background())
	assert.Equal(t, health.ProbeDegraded, out.Status)
	assert.Equal(t, "backlog pressure", out.Detail["reason"])
}
