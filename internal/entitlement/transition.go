// AngelaMos | 2026
// transition.go

package entitlement

import (
	"time"
)

type EventName string

const (
	EventOrderCreated          EventName = "order_created"
	EventSubscriptionCreated   EventName = "subscription_created"
	EventSubscriptionCancelled EventName = "subscription_cancelled"
	EventSubscriptionExpired   EventName = "subscription_expired"
)

// Handled reports whether the name drives a state change. Any other name is
// acknowledged and dropped.
func (n EventName) Handled() bool {
	switch n {
	case EventOrderCreated,
		EventSubscriptionCreated,
		EventSubscriptionCancelled,
		EventSubscriptionExpired:
		return true
	default:
		return false
	}
}

func (n EventName) Grants() bool {
	return n == EventOrderCreated || n == EventSubscriptionCreated
}

// Event is the provider-neutral input of a transition.
type Event struct {
	Name           EventName
	UserID         string
	SubscriptionID string
	CustomerID     string
	VariantName    string
	RenewsAt       *time.Time
	OccurredAt     *time.Time
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeStale     Outcome = "stale"
	OutcomeUnhandled Outcome = "unhandled"
)

// Transition computes the record that results from applying ev to current.
// It is pure: the same inputs always give the same record, so replaying an
// event is an overwrite with identical values.
func Transition(current Record, ev Event, now time.Time) (Record, Outcome) {
	if !ev.Name.Handled() {
		return current, OutcomeUnhandled
	}

	if ev.OccurredAt != nil && current.LastEventAt != nil &&
		ev.OccurredAt.Before(*current.LastEventAt) {
		return current, OutcomeStale
	}

	next := current

	switch ev.Name {
	case EventOrderCreated, EventSubscriptionCreated:
		if ev.UserID == "" {
			return current, OutcomeIgnored
		}
		if supersededGrant(current, ev, now) {
			return current, OutcomeUnchanged
		}
		grant(&next, ev)

	case EventSubscriptionCancelled:
		if !ownsSubscription(current, ev) {
			return current, OutcomeIgnored
		}
		// Grace period: access continues until premium_until passes.
		if next.CancelledAt == nil {
			at := now.UTC()
			if ev.OccurredAt != nil {
				at = ev.OccurredAt.UTC()
			}
			next.CancelledAt = &at
		}

	case EventSubscriptionExpired:
		if !ownsSubscription(current, ev) {
			return current, OutcomeIgnored
		}
		next.Tier = TierFree
		next.PremiumUntil = nil
		next.Lifetime = false
	}

	if ev.OccurredAt != nil {
		at := ev.OccurredAt.UTC()
		next.LastEventAt = &at
	}

	if sameState(current, next) {
		return current, OutcomeUnchanged
	}

	return next, OutcomeApplied
}

// supersededGrant reports whether a grant adds nothing to what current
// already holds. A redelivered grant for the subscription on file must not
// reset usage, and an order for the same purchase must not turn a dated
// subscription into a lifetime one. A grant only wins when it is provably
// newer than the last applied event.
func supersededGrant(current Record, ev Event, now time.Time) bool {
	if happenedAfter(ev.OccurredAt, current.LastEventAt) {
		return false
	}

	if current.SubscriptionID != "" && current.SubscriptionID == ev.SubscriptionID {
		return true
	}

	return ev.Name == EventOrderCreated &&
		current.SubscriptionID != "" &&
		current.PremiumUntil != nil &&
		current.IsPremium(now)
}

// happenedAfter is false whenever either timestamp is missing.
func happenedAfter(at, last *time.Time) bool {
	return at != nil && last != nil && at.After(*last)
}

func grant(r *Record, ev Event) {
	r.Tier = TierPremium
	r.SubscriptionID = ev.SubscriptionID
	r.CustomerID = ev.CustomerID
	r.VariantName = ev.VariantName
	r.UsageCounter = 0
	r.CancelledAt = nil

	if ev.RenewsAt != nil {
		until := ev.RenewsAt.UTC()
		r.PremiumUntil = &until
		r.Lifetime = false
		return
	}

	r.PremiumUntil = nil
	r.Lifetime = true
}

func ownsSubscription(r Record, ev Event) bool {
	return r.SubscriptionID != "" && r.SubscriptionID == ev.SubscriptionID
}
