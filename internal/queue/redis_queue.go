package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"artist-sync/internal/models"
)

// Queue coordinates the ready, in-flight, and scheduled views of one named
// queue in Redis. Ready jobs live in one list per priority; delayed jobs in
// a scheduled zset keyed by eligibility time; leased jobs in an in-flight
// zset keyed by visibility deadline.
type Queue struct {
	client        *redis.Client
	name          string
	visibilityTTL time.Duration
}

func newQueue(client *redis.Client, name string, visibility time.Duration) *Queue {
	if visibility == 0 {
		visibility = 60 * time.Second
	}
	return &Queue{client: client, name: name, visibilityTTL: visibility}
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) readyKey(p models.Priority) string {
	return fmt.Sprintf("queue:ready:%s:p%d", q.name, p)
}

func (q *Queue) scheduledKey() string { return "queue:scheduled:" + q.name }
func (q *Queue) inflightKey() string  { return "queue:inflight:" + q.name }
func (q *Queue) metaKey(jobID string) string {
	return fmt.Sprintf("queue:jobmeta:%s:%s", q.name, jobID)
}

func priorities() []models.Priority {
	return []models.Priority{
		models.PriorityCritical,
		models.PriorityHigh,
		models.PriorityNormal,
		models.PriorityLow,
		models.PriorityBackground,
	}
}

// Enqueue inserts a job into either the scheduled set or its priority lane.
func (q *Queue) Enqueue(ctx context.Context, jobID string, priority models.Priority, runAt time.Time) error {
	if !priority.Valid() {
		priority = models.PriorityNormal
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(jobID), "priority", int(priority))
	if runAt.After(time.Now()) {
		pipe.ZAdd(ctx, q.scheduledKey(), redis.Z{Score: float64(runAt.UnixMilli()), Member: jobID})
	} else {
		pipe.RPush(ctx, q.readyKey(priority), jobID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Schedule moves a job into the scheduled set for deferred execution
// (delay on first enqueue, or backoff between retry attempts).
func (q *Queue) Schedule(ctx context.Context, jobID string, priority models.Priority, runAt time.Time) error {
	if !priority.Valid() {
		priority = models.PriorityNormal
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(jobID), "priority", int(priority))
	pipe.ZAdd(ctx, q.scheduledKey(), redis.Z{Score: float64(runAt.UnixMilli()), Member: jobID})
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Queue) priorityOf(ctx context.Context, jobID string) models.Priority {
	v, err := q.client.HGet(ctx, q.metaKey(jobID), "priority").Int()
	if err != nil || !models.Priority(v).Valid() {
		return models.PriorityNormal
	}
	return models.Priority(v)
}

// PromoteScheduled moves due scheduled jobs into their ready lanes. It
// returns how many were promoted.
func (q *Queue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		p := q.priorityOf(ctx, id)
		pipe.ZRem(ctx, q.scheduledKey(), id)
		pipe.RPush(ctx, q.readyKey(p), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DequeueWithLease pops the highest-priority eligible job and places it into
// the in-flight set with a visibility deadline. Returns "" when idle.
func (q *Queue) DequeueWithLease(ctx context.Context) (string, error) {
	keys := make([]string, 0, 6)
	for _, p := range priorities() {
		keys = append(keys, q.readyKey(p))
	}
	keys = append(keys, q.inflightKey())

	res, err := dequeueScript.Run(ctx, q.client, keys, time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *Queue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey(), redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a job from in-flight tracking and its meta record.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired reclaims leases that timed out, re-enqueuing the jobs.
func (q *Queue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		p := q.priorityOf(ctx, id)
		pipe.ZRem(ctx, q.inflightKey(), id)
		pipe.RPush(ctx, q.readyKey(p), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReadyDepth returns the total length of the queue's ready lanes.
func (q *Queue) ReadyDepth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, 5)
	for _, p := range priorities() {
		cmds = append(cmds, pipe.LLen(ctx, q.readyKey(p)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	var total int64
	for _, c := range cmds {
		total += c.Val()
	}
	return total, nil
}

var dequeueScript = redis.NewScript(`
local inflight = KEYS[#KEYS]
for i=1,#KEYS-1 do
  local job = redis.call('LPOP', KEYS[i])
  if job then
    redis.call('ZADD', inflight, ARGV[1], job)
    return job
  end
end
return nil
`)
