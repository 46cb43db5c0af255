// AngelaMos | 2026
// dedup.go

package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
)

// Deduplicator remembers completed deliveries for a bounded window so
// provider retries of an already applied event short-circuit.
type Deduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduplicator(client *redis.Client, ttl time.Duration) *Deduplicator {
	return &Deduplicator{client: client, ttl: ttl}
}

func (d *Deduplicator) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := d.client.Exists(ctx, deliveryKey(deliveryID)).Result()
	if err != nil {
		return false, fmt.Errorf("check delivery: %w", err)
	}

	return n > 0, nil
}

func (d *Deduplicator) MarkSeen(ctx context.Context, deliveryID string) error {
	if err := d.client.Set(ctx, deliveryKey(deliveryID), time.Now().UTC().Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("mark delivery: %w", err)
	}

	return nil
}

func deliveryKey(deliveryID string) string {
	return core.RedisKey("webhook", "delivery", deliveryID)
}
