// Package cache evicts derived read-side keys after a forced-refresh import.
// Not required for correctness, only for freshness.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Invalidator deletes cache keys by pattern.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{client: client}
}

// InvalidatePattern scans for keys matching the pattern and deletes them in
// batches. Returns the number of keys evicted.
func (i *Invalidator) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		evicted int
	)
	for {
		keys, next, err := i.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return evicted, fmt.Errorf("scan %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := i.client.Del(ctx, keys...).Err(); err != nil {
				return evicted, fmt.Errorf("del: %w", err)
			}
			evicted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return evicted, nil
		}
	}
}

// InvalidateArtist evicts every derived key for one artist.
func (i *Invalidator) InvalidateArtist(ctx context.Context, artistID string) (int, error) {
	return i.InvalidatePattern(ctx, "artist:"+artistID+":*")
}
