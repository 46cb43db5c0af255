// AngelaMos | 2026
// sweeper_test.go

package entitlement_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
)

type countingRecorder struct {
	mu    sync.Mutex
	total int
	calls int
}

func (c *countingRecorder) EntitlementsExpired(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total += n
	c.calls++
}

func (c *countingRecorder) snapshot() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.total, c.calls
}

func seedLapsed(t *testing.T, put func(entitlement.Record)) {
	t.Helper()

	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	put(entitlement.Record{UserID: "lapsed", Tier: entitlement.TierPremium, PremiumUntil: &past})
	put(entitlement.Record{UserID: "active", Tier: entitlement.TierPremium, PremiumUntil: &future})
	put(entitlement.Record{UserID: "forever", Tier: entitlement.TierPremium, Lifetime: true})
}

func TestSweepOnceNormalisesLapsedRecords(t *testing.T) {
	svc, repo, pub := newService(t)
	seedLapsed(t, repo.Put)
	recorder := &countingRecorder{}

	sweeper := entitlement.NewSweeper(svc, time.Minute, recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	n := sweeper.SweepOnce(context.Background())

	assert.Equal(t, 1, n)
	total, calls := recorder.snapshot()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, calls)

	rec, err := repo.Get(context.Background(), "lapsed")
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, rec.Tier)

	rec, err = repo.Get(context.Background(), "active")
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, rec.Tier)

	changes := pub.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, entitlement.CauseSweep, changes[0].Cause)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	svc, repo, _ := newService(t)
	seedLapsed(t, repo.Put)
	recorder := &countingRecorder{}

	sweeper := entitlement.NewSweeper(svc, 10*time.Millisecond, recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, calls := recorder.snapshot()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	total, _ := recorder.snapshot()
	assert.Equal(t, 1, total)
}

func TestSweeperDisabledWithoutInterval(t *testing.T) {
	svc, _, _ := newService(t)
	sweeper := entitlement.NewSweeper(svc, 0, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() {
		sweeper.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
