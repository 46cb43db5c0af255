// AngelaMos | 2026
// memory.go

// Package entitlementtest provides an in-memory entitlement store for tests.
package entitlementtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
)

// Repository mimics the Postgres store: Mutate is serialized per store,
// bumps the version on every committed write and only commits when the
// version it read is still current.
type Repository struct {
	mu          sync.Mutex
	records     map[string]entitlement.Record
	failures    []error
	interleaved []func(rec *entitlement.Record)
	mutates     int
	writes      int
}

var _ entitlement.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{records: make(map[string]entitlement.Record)}
}

// Put seeds a record as if it had been written earlier.
func (r *Repository) Put(rec entitlement.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Version == 0 {
		rec.Version = 1
	}
	r.records[rec.UserID] = rec
}

// FailNext makes the next len(errs) Mutate calls return those errors in order.
func (r *Repository) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures = append(r.failures, errs...)
}

// Interleave schedules a competing writer for the next Mutate that reaches
// the store. It runs after the caller's read and before its write, so the
// caller loses the race and gets core.ErrConflict. Multiple calls queue up,
// one per Mutate.
func (r *Repository) Interleave(fn func(rec *entitlement.Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interleaved = append(r.interleaved, fn)
}

// Mutates counts Mutate calls, failed ones included.
func (r *Repository) Mutates() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutates
}

// Writes counts committed writes.
func (r *Repository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writes
}

func (r *Repository) Get(_ context.Context, userID string) (*entitlement.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, fmt.Errorf("get entitlement: %w", core.ErrNotFound)
	}

	return &rec, nil
}

func (r *Repository) FindBySubscriptionID(
	_ context.Context,
	subscriptionID string,
) (*entitlement.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if subscriptionID != "" && rec.SubscriptionID == subscriptionID {
			return &rec, nil
		}
	}

	return nil, fmt.Errorf("find by subscription: %w", core.ErrNotFound)
}

func (r *Repository) Mutate(
	ctx context.Context,
	userID string,
	fn entitlement.MutateFunc,
) (entitlement.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mutates++

	if err := ctx.Err(); err != nil {
		return entitlement.Record{}, fmt.Errorf("mutate entitlement: %w", err)
	}

	if len(r.failures) > 0 {
		err := r.failures[0]
		r.failures = r.failures[1:]
		return entitlement.Record{}, fmt.Errorf("mutate entitlement: %w", err)
	}

	current, ok := r.records[userID]
	if !ok {
		current = entitlement.NewRecord(userID)
	}

	next, changed, err := fn(current)
	if err != nil {
		return entitlement.Record{}, fmt.Errorf("mutate entitlement: %w", err)
	}

	r.runInterleaved(userID)

	if !changed {
		return current, nil
	}

	stored, exists := r.records[userID]
	switch {
	case !ok && exists:
		return entitlement.Record{}, fmt.Errorf(
			"mutate entitlement: insert entitlement: %w", core.ErrConflict)
	case ok && stored.Version != current.Version:
		return entitlement.Record{}, fmt.Errorf(
			"mutate entitlement: update entitlement: %w", core.ErrConflict)
	}

	now := time.Now().UTC()
	if !ok {
		next.CreatedAt = now
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	r.records[userID] = next
	r.writes++

	return next, nil
}

func (r *Repository) runInterleaved(userID string) {
	if len(r.interleaved) == 0 {
		return
	}
	compete := r.interleaved[0]
	r.interleaved = r.interleaved[1:]

	rec, ok := r.records[userID]
	if !ok {
		rec = entitlement.NewRecord(userID)
		rec.CreatedAt = time.Now().UTC()
	}
	compete(&rec)
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	r.records[userID] = rec
	r.writes++
}

func (r *Repository) ExpireLapsed(
	_ context.Context,
	now time.Time,
) ([]entitlement.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []entitlement.Record
	for id, rec := range r.records {
		if !rec.Lapsed(now) {
			continue
		}
		rec.Tier = entitlement.TierFree
		rec.PremiumUntil = nil
		rec.Lifetime = false
		rec.Version++
		rec.UpdatedAt = now
		r.records[id] = rec
		r.writes++
		expired = append(expired, rec)
	}

	return expired, nil
}

func (r *Repository) Stats(_ context.Context, now time.Time) (entitlement.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats entitlement.Stats
	for _, rec := range r.records {
		stats.Total++
		if rec.IsPremium(now) {
			stats.Premium++
			if rec.IsCancelled() && !rec.Lifetime {
				stats.InGracePeriod++
			}
		}
		if rec.Tier == entitlement.TierPremium && rec.Lifetime {
			stats.Lifetime++
		}
		if rec.Lapsed(now) {
			stats.Lapsed++
		}
	}

	return stats, nil
}
