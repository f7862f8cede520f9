package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"artist-sync/internal/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := NewRegistryWithClient(client, 30*time.Second)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestQueuePriorityOrdering(t *testing.T) {
	ctx := context.Background()
	q := testRegistry(t).Queue(models.QueueCatalogSync)
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, "job-bg", models.PriorityBackground, now))
	require.NoError(t, q.Enqueue(ctx, "job-normal", models.PriorityNormal, now))
	require.NoError(t, q.Enqueue(ctx, "job-critical", models.PriorityCritical, now))

	for _, want := range []string{"job-critical", "job-normal", "job-bg"} {
		got, err := q.DequeueWithLease(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	got, err := q.DequeueWithLease(ctx)
	require.NoError(t, err)
	require.Empty(t, got, "drained queue must return no job")
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	ctx := context.Background()
	q := testRegistry(t).Queue(models.QueueEventSync)
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, "first", models.PriorityNormal, now))
	require.NoError(t, q.Enqueue(ctx, "second", models.PriorityNormal, now))

	got, _ := q.DequeueWithLease(ctx)
	require.Equal(t, "first", got)
	got, _ = q.DequeueWithLease(ctx)
	require.Equal(t, "second", got)
}

func TestQueueDelayedJobNotEligibleUntilPromoted(t *testing.T) {
	ctx := context.Background()
	q := testRegistry(t).Queue(models.QueueCatalogDeep)

	runAt := time.Now().Add(5 * time.Second)
	require.NoError(t, q.Schedule(ctx, "delayed-job", models.PriorityLow, runAt))

	got, err := q.DequeueWithLease(ctx)
	require.NoError(t, err)
	require.Empty(t, got, "delayed job must not be dequeued early")

	// Nothing due yet.
	n, err := q.PromoteScheduled(ctx, time.Now(), 100)
	require.NoError(t, err)
	require.Zero(t, n)

	// Past the delay-until time it becomes eligible.
	n, err = q.PromoteScheduled(ctx, runAt.Add(time.Millisecond), 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err = q.DequeueWithLease(ctx)
	require.NoError(t, err)
	require.Equal(t, "delayed-job", got)
}

func TestQueueAckRemovesLease(t *testing.T) {
	ctx := context.Background()
	q := testRegistry(t).Queue(models.QueueProfileSync)

	require.NoError(t, q.Enqueue(ctx, "job-1", models.PriorityNormal, time.Now()))
	got, err := q.DequeueWithLease(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", got)

	require.NoError(t, q.Ack(ctx, "job-1"))

	// An acked job is never reclaimed, even far past its deadline.
	reclaimed, err := q.RequeueExpired(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	require.Empty(t, reclaimed)
}

func TestQueueExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	q := testRegistry(t).Queue(models.QueueSetlistSync)

	require.NoError(t, q.Enqueue(ctx, "job-1", models.PriorityHigh, time.Now()))
	got, err := q.DequeueWithLease(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", got)

	// Within the visibility window the lease holds.
	reclaimed, err := q.RequeueExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	require.Empty(t, reclaimed)

	// Past the deadline the job returns to its original priority lane.
	reclaimed, err = q.RequeueExpired(ctx, time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, reclaimed)

	got, err = q.DequeueWithLease(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", got)
}

func TestQueueReadyDepth(t *testing.T) {
	ctx := context.Background()
	q := testRegistry(t).Queue(models.QueueArtwork)
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, "a", models.PriorityCritical, now))
	require.NoError(t, q.Enqueue(ctx, "b", models.PriorityBackground, now))
	require.NoError(t, q.Schedule(ctx, "c", models.PriorityNormal, now.Add(time.Hour)))

	depth, err := q.ReadyDepth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, depth, "scheduled jobs do not count toward ready depth")
}

func TestRegistryReturnsSameQueueInstance(t *testing.T) {
	reg := testRegistry(t)
	a := reg.Queue(models.QueueProfileSync)
	b := reg.Queue(models.QueueProfileSync)
	require.Same(t, a, b)
	require.Equal(t, models.QueueProfileSync, a.Name())
}
