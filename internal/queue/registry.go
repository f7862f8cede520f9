package queue

import (
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"artist-sync/internal/config"
)

// Registry owns the Redis client and hands out named queues. It is
// constructed once and passed to whichever component needs it; there is no
// process-wide queue map.
type Registry struct {
	client     *redis.Client
	visibility time.Duration

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewRegistry builds a registry with its own Redis connection.
func NewRegistry(cfg config.Config) *Registry {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRegistryWithClient(client, cfg.VisibilityTimeout)
}

// NewRegistryWithClient builds a registry around an existing client.
// The registry takes ownership and closes it on Close.
func NewRegistryWithClient(client *redis.Client, visibility time.Duration) *Registry {
	return &Registry{
		client:     client,
		visibility: visibility,
		queues:     make(map[string]*Queue),
	}
}

// Queue returns the named queue, creating it on first use.
func (r *Registry) Queue(name string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[name]
	if !ok {
		q = newQueue(r.client, name, r.visibility)
		r.queues[name] = q
	}
	return q
}

// Client exposes the underlying Redis client for components that share the
// connection (queue-level buckets, cache invalidation).
func (r *Registry) Client() *redis.Client { return r.client }

// Close shuts down the underlying Redis connection.
func (r *Registry) Close() error { return r.client.Close() }
