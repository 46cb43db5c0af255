// AngelaMos | 2026
// dto.go

package entitlement

import (
	"time"
)

type EntitlementResponse struct {
	UserID       string     `json:"user_id"`
	IsPremium    bool       `json:"is_premium"`
	Tier         Tier       `json:"tier"`
	PremiumUntil *time.Time `json:"premium_until"`
	Lifetime     bool       `json:"lifetime"`
	Expiry       ExpiryKind `json:"expiry"`
	UsageCounter int        `json:"usage_counter"`
	VariantName  string     `json:"variant_name,omitempty"`
	Cancelled    bool       `json:"cancelled"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

type AdminEntitlementResponse struct {
	EntitlementResponse
	SubscriptionID string     `json:"subscription_id"`
	CustomerID     string     `json:"customer_id"`
	LastEventAt    *time.Time `json:"last_event_at"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type SweepResponse struct {
	Expired int      `json:"expired"`
	UserIDs []string `json:"user_ids"`
}

func ToEntitlementResponse(r *Record, now time.Time) EntitlementResponse {
	expiry := r.Expiry()

	return EntitlementResponse{
		UserID:       r.UserID,
		IsPremium:    r.IsPremium(now),
		Tier:         r.Tier,
		PremiumUntil: expiry.At,
		Lifetime:     r.Lifetime,
		Expiry:       expiry.Kind,
		UsageCounter: r.UsageCounter,
		VariantName:  r.VariantName,
		Cancelled:    r.IsCancelled(),
		CancelledAt:  r.CancelledAt,
	}
}

func ToAdminEntitlementResponse(r *Record, now time.Time) AdminEntitlementResponse {
	return AdminEntitlementResponse{
		EntitlementResponse: ToEntitlementResponse(r, now),
		SubscriptionID:      r.SubscriptionID,
		CustomerID:          r.CustomerID,
		LastEventAt:         r.LastEventAt,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func ToSweepResponse(expired []Record) SweepResponse {
	ids := make([]string, 0, len(expired))
	for _, r := range expired {
		ids = append(ids, r.UserID)
	}

	return SweepResponse{
		Expired: len(expired),
		UserIDs: ids,
	}
}
