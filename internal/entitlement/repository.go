// AngelaMos | 2026
// repository.go

package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
)

// MutateFunc receives the locked current record and returns the record to
// store. Returning changed=false commits nothing.
type MutateFunc func(current Record) (next Record, changed bool, err error)

type Repository interface {
	Get(ctx context.Context, userID string) (*Record, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error)
	Mutate(ctx context.Context, userID string, fn MutateFunc) (Record, error)
	ExpireLapsed(ctx context.Context, now time.Time) ([]Record, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

type Stats struct {
	Total         int `db:"total"          json:"total"`
	Premium       int `db:"premium"        json:"premium"`
	Lifetime      int `db:"lifetime"       json:"lifetime"`
	InGracePeriod int `db:"in_grace_period" json:"in_grace_period"`
	Lapsed        int `db:"lapsed"         json:"lapsed"`
}

const recordColumns = `
	user_id, tier, subscription_id, customer_id, variant_name,
	premium_until, premium_lifetime, usage_counter, cancelled_at,
	last_event_at, version, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, userID string) (*Record, error) {
	query := `SELECT` + recordColumns + `
		FROM entitlements
		WHERE user_id = $1`

	var rec Record
	err := r.db.GetContext(ctx, &rec, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get entitlement: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entitlement: %w", err)
	}

	return &rec, nil
}

func (r *repository) FindBySubscriptionID(
	ctx context.Context,
	subscriptionID string,
) (*Record, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("find by subscription: %w", core.ErrNotFound)
	}

	query := `SELECT` + recordColumns + `
		FROM entitlements
		WHERE subscription_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	var rec Record
	err := r.db.GetContext(ctx, &rec, query, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find by subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find by subscription: %w", err)
	}

	return &rec, nil
}

// Mutate locks the user's row for the duration of fn and writes the result
// only if the row version is still the one that was read. A lost race
// surfaces as core.ErrConflict.
func (r *repository) Mutate(
	ctx context.Context,
	userID string,
	fn MutateFunc,
) (Record, error) {
	var stored Record

	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, exists, err := lockRecord(ctx, tx, userID)
		if err != nil {
			return err
		}

		next, changed, err := fn(current)
		if err != nil {
			return err
		}
		if !changed {
			stored = current
			return nil
		}

		if exists {
			stored, err = updateRecord(ctx, tx, next, current.Version)
		} else {
			stored, err = insertRecord(ctx, tx, next)
		}
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("mutate entitlement: %w", err)
	}

	return stored, nil
}

func lockRecord(ctx context.Context, tx *sqlx.Tx, userID string) (Record, bool, error) {
	query := `SELECT` + recordColumns + `
		FROM entitlements
		WHERE user_id = $1
		FOR UPDATE`

	var rec Record
	err := tx.GetContext(ctx, &rec, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewRecord(userID), false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lock entitlement: %w", err)
	}

	return rec, true, nil
}

func updateRecord(
	ctx context.Context,
	tx *sqlx.Tx,
	rec Record,
	expectedVersion int64,
) (Record, error) {
	query := `
		UPDATE entitlements
		SET tier = $3, subscription_id = $4, customer_id = $5,
		    variant_name = $6, premium_until = $7, premium_lifetime = $8,
		    usage_counter = $9, cancelled_at = $10, last_event_at = $11,
		    version = version + 1, updated_at = NOW()
		WHERE user_id = $1 AND version = $2
		RETURNING` + recordColumns

	var stored Record
	err := tx.GetContext(ctx, &stored, query,
		rec.UserID,
		expectedVersion,
		rec.Tier,
		rec.SubscriptionID,
		rec.CustomerID,
		rec.VariantName,
		rec.PremiumUntil,
		rec.Lifetime,
		rec.UsageCounter,
		rec.CancelledAt,
		rec.LastEventAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("update entitlement: %w", core.ErrConflict)
	}
	if err != nil {
		return Record{}, fmt.Errorf("update entitlement: %w", err)
	}

	return stored, nil
}

func insertRecord(ctx context.Context, tx *sqlx.Tx, rec Record) (Record, error) {
	query := `
		INSERT INTO entitlements (
			user_id, tier, subscription_id, customer_id, variant_name,
			premium_until, premium_lifetime, usage_counter, cancelled_at,
			last_event_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING` + recordColumns

	var stored Record
	err := tx.GetContext(ctx, &stored, query,
		rec.UserID,
		rec.Tier,
		rec.SubscriptionID,
		rec.CustomerID,
		rec.VariantName,
		rec.PremiumUntil,
		rec.Lifetime,
		rec.UsageCounter,
		rec.CancelledAt,
		rec.LastEventAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// another writer created the row between our read and insert
		return Record{}, fmt.Errorf("insert entitlement: %w", core.ErrConflict)
	}
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return Record{}, fmt.Errorf("insert entitlement: %w", core.ErrConflict)
		}
		return Record{}, fmt.Errorf("insert entitlement: %w", err)
	}

	return stored, nil
}

func (r *repository) ExpireLapsed(ctx context.Context, now time.Time) ([]Record, error) {
	query := `
		UPDATE entitlements
		SET tier = 'free', premium_until = NULL, premium_lifetime = FALSE,
		    version = version + 1, updated_at = NOW()
		WHERE tier = 'premium'
		  AND premium_lifetime = FALSE
		  AND (premium_until IS NULL OR premium_until <= $1)
		RETURNING` + recordColumns

	var expired []Record
	if err := r.db.SelectContext(ctx, &expired, query, now); err != nil {
		return nil, fmt.Errorf("expire lapsed entitlements: %w", err)
	}

	return expired, nil
}

func (r *repository) Stats(ctx context.Context, now time.Time) (Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (
				WHERE tier = 'premium'
				  AND (premium_lifetime OR premium_until > $1)
			) AS premium,
			COUNT(*) FILTER (
				WHERE tier = 'premium' AND premium_lifetime
			) AS lifetime,
			COUNT(*) FILTER (
				WHERE tier = 'premium' AND cancelled_at IS NOT NULL
				  AND premium_until > $1
			) AS in_grace_period,
			COUNT(*) FILTER (
				WHERE tier = 'premium' AND NOT premium_lifetime
				  AND (premium_until IS NULL OR premium_until <= $1)
			) AS lapsed
		FROM entitlements`

	var stats Stats
	if err := r.db.GetContext(ctx, &stats, query, now); err != nil {
		return Stats{}, fmt.Errorf("entitlement stats: %w", err)
	}

	return stats, nil
}
