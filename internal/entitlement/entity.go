// AngelaMos | 2026
// entity.go

package entitlement

import (
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Record is the persisted entitlement of one user. Whether the user is
// premium right now is never stored; see IsPremium.
type Record struct {
	UserID         string     `db:"user_id"`
	Tier           Tier       `db:"tier"`
	SubscriptionID string     `db:"subscription_id"`
	CustomerID     string     `db:"customer_id"`
	VariantName    string     `db:"variant_name"`
	PremiumUntil   *time.Time `db:"premium_until"`
	Lifetime       bool       `db:"premium_lifetime"`
	UsageCounter   int        `db:"usage_counter"`
	CancelledAt    *time.Time `db:"cancelled_at"`
	LastEventAt    *time.Time `db:"last_event_at"`
	Version        int64      `db:"version"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// NewRecord is the implicit state of a user the store has never seen.
func NewRecord(userID string) Record {
	return Record{
		UserID: userID,
		Tier:   TierFree,
	}
}

func (r *Record) IsPremium(now time.Time) bool {
	if r.Tier != TierPremium {
		return false
	}
	if r.Lifetime {
		return true
	}
	return r.PremiumUntil != nil && now.Before(*r.PremiumUntil)
}

func (r *Record) IsCancelled() bool {
	return r.CancelledAt != nil
}

// Lapsed reports a premium record whose paid period has ended but which no
// expiry event has normalised yet.
func (r *Record) Lapsed(now time.Time) bool {
	return r.Tier == TierPremium && !r.IsPremium(now)
}

// Expiry renders premium_until with its two sentinels.
func (r *Record) Expiry() Expiry {
	switch {
	case r.Lifetime:
		return Expiry{Kind: ExpiryLifetime}
	case r.PremiumUntil != nil:
		at := r.PremiumUntil.UTC()
		return Expiry{Kind: ExpiryAt, At: &at}
	default:
		return Expiry{Kind: ExpiryNone}
	}
}

type ExpiryKind string

const (
	ExpiryNone     ExpiryKind = "none"
	ExpiryLifetime ExpiryKind = "lifetime"
	ExpiryAt       ExpiryKind = "at"
)

type Expiry struct {
	Kind ExpiryKind
	At   *time.Time
}

// sameState compares the fields a transition may touch.
func sameState(a, b Record) bool {
	return a.Tier == b.Tier &&
		a.SubscriptionID == b.SubscriptionID &&
		a.CustomerID == b.CustomerID &&
		a.VariantName == b.VariantName &&
		equalTime(a.PremiumUntil, b.PremiumUntil) &&
		a.Lifetime == b.Lifetime &&
		a.UsageCounter == b.UsageCounter &&
		equalTime(a.CancelledAt, b.CancelledAt) &&
		equalTime(a.LastEventAt, b.LastEventAt)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
