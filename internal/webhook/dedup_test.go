// AngelaMos | 2026
// dedup_test.go

package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestDeduplicatorRemembersDeliveries(t *testing.T) {
	mr, client := newMiniredis(t)
	dedup := NewDeduplicator(client, time.Hour)
	ctx := context.Background()

	seen, err := dedup.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, dedup.MarkSeen(ctx, "abc"))

	seen, err = dedup.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.True(t, mr.Exists("billing:webhook:delivery:abc"))
	assert.Equal(t, time.Hour, mr.TTL("billing:webhook:delivery:abc"))
}

func TestDeduplicatorForgetsAfterTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	dedup := NewDeduplicator(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, dedup.MarkSeen(ctx, "abc"))
	mr.FastForward(2 * time.Minute)

	seen, err := dedup.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDeduplicatorSurfacesRedisErrors(t *testing.T) {
	mr, client := newMiniredis(t)
	dedup := NewDeduplicator(client, time.Minute)
	mr.Close()

	_, err := dedup.Seen(context.Background(), "abc")
	assert.Error(t, err)
}
