// AngelaMos | 2026
// reconciler.go

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
)

// ErrStoreFailure means the entitlement could not be read or written within
// the retry budget. The provider is expected to redeliver.
var ErrStoreFailure = errors.New("entitlement store failure")

const (
	outcomeDuplicate  = "duplicate"
	outcomeUnresolved = "unresolved"
	outcomeFailed     = "store_failure"
)

type EntitlementService interface {
	ResolveUserID(ctx context.Context, ev entitlement.Event) (string, error)
	Apply(ctx context.Context, userID string, ev entitlement.Event) (entitlement.Result, error)
}

type DeliveryStore interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	MarkSeen(ctx context.Context, deliveryID string) error
}

type RetryPolicy struct {
	MaxAttempts    int
	Initial        time.Duration
	MaxElapsed     time.Duration
	AttemptTimeout time.Duration
}

func RetryPolicyFromConfig(cfg config.BillingConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.StoreRetryAttempts,
		Initial:        cfg.StoreRetryInitial,
		MaxElapsed:     cfg.StoreRetryMaxElapsed,
		AttemptTimeout: cfg.StoreTimeout,
	}
}

type Result struct {
	Outcome   entitlement.Outcome
	UserID    string
	Duplicate bool
}

type Reconciler struct {
	service    EntitlementService
	deliveries DeliveryStore
	locks      *KeyedLock
	metrics    *metrics.Metrics
	logger     *slog.Logger
	retry      RetryPolicy
}

type ReconcilerConfig struct {
	Service    EntitlementService
	Deliveries DeliveryStore
	Locks      *KeyedLock
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Retry      RetryPolicy
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	locks := cfg.Locks
	if locks == nil {
		locks = NewKeyedLock()
	}

	return &Reconciler{
		service:    cfg.Service,
		deliveries: cfg.Deliveries,
		locks:      locks,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		retry:      cfg.Retry,
	}
}

// Reconcile applies one authenticated event. A nil error means the delivery
// can be acknowledged, including when nothing changed.
func (r *Reconciler) Reconcile(ctx context.Context, ev *Event, deliveryID string) (Result, error) {
	start := time.Now()
	name := string(ev.Name)

	ctx, span := core.StartSpan(ctx, "webhook.reconcile",
		attribute.String("billing.event_name", name),
		attribute.String("billing.object_id", ev.ObjectID),
	)
	defer span.End()

	defer func() {
		r.metrics.ObserveReconcile(name, time.Since(start))
	}()

	logger := r.logger.With(
		"event_name", name,
		"subscription_id", ev.ObjectID,
		"delivery_id", deliveryID,
	)

	if !ev.Name.Handled() {
		logger.Debug("ignoring unhandled webhook event")
		r.metrics.WebhookEvent(name, string(entitlement.OutcomeUnhandled))
		return Result{Outcome: entitlement.OutcomeUnhandled}, nil
	}

	seen, err := r.deliveries.Seen(ctx, deliveryID)
	if err != nil {
		// transitions are idempotent, so a dedup outage only costs a rewrite
		logger.Warn("delivery dedup unavailable", "error", err)
	}
	if seen {
		logger.Info("duplicate webhook delivery")
		r.metrics.WebhookEvent(name, outcomeDuplicate)
		return Result{Duplicate: true}, nil
	}

	input := ev.Entitlement()

	userID, err := withRetry(ctx, r, func(ctx context.Context) (string, error) {
		return r.service.ResolveUserID(ctx, input)
	})
	if errors.Is(err, core.ErrNotFound) {
		logger.Warn("webhook event has no resolvable user",
			"error_kind", "validation",
		)
		r.metrics.WebhookEvent(name, outcomeUnresolved)
		r.markSeen(ctx, logger, deliveryID)
		return Result{Outcome: entitlement.OutcomeIgnored}, nil
	}
	if err != nil {
		return r.fail(ctx, logger, name, err)
	}
	logger = logger.With("user_id", userID)

	release, err := r.locks.Acquire(ctx, userID)
	if err != nil {
		return r.fail(ctx, logger, name, err)
	}
	defer release()

	res, err := withRetry(ctx, r, func(ctx context.Context) (entitlement.Result, error) {
		return r.service.Apply(ctx, userID, input)
	})
	if err != nil {
		return r.fail(ctx, logger, name, err)
	}

	span.SetAttributes(attribute.String("billing.outcome", string(res.Outcome)))
	r.metrics.WebhookEvent(name, string(res.Outcome))
	r.markSeen(ctx, logger, deliveryID)

	logger.Info("webhook reconciled",
		"outcome", res.Outcome,
		"tier", res.After.Tier,
		"version", res.After.Version,
	)

	return Result{Outcome: res.Outcome, UserID: userID}, nil
}

func (r *Reconciler) fail(
	ctx context.Context,
	logger *slog.Logger,
	name string,
	err error,
) (Result, error) {
	core.SetSpanError(ctx, err)
	r.metrics.WebhookEvent(name, outcomeFailed)
	logger.Error("webhook reconcile failed",
		"error_kind", "store",
		"error", err,
	)
	return Result{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
}

func (r *Reconciler) markSeen(ctx context.Context, logger *slog.Logger, deliveryID string) {
	if err := r.deliveries.MarkSeen(ctx, deliveryID); err != nil {
		logger.Warn("mark delivery seen failed", "error", err)
	}
}

// withRetry runs op with exponential backoff while it fails transiently.
// Each attempt gets its own timeout; other errors end the loop at once.
func withRetry[T any](
	ctx context.Context,
	r *Reconciler,
	op func(ctx context.Context) (T, error),
) (T, error) {
	attempt := func() (T, error) {
		attemptCtx := ctx
		if r.retry.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.retry.AttemptTimeout)
			defer cancel()
		}

		v, err := op(attemptCtx)
		if err != nil && !retryable(ctx, err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		r.metrics.StoreRetry()
		r.logger.Warn("retrying entitlement store operation",
			"error", err,
			"wait", wait,
		)
	}

	return backoff.RetryNotifyWithData(attempt, r.backoffPolicy(ctx), notify)
}

func (r *Reconciler) backoffPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.retry.Initial > 0 {
		b.InitialInterval = r.retry.Initial
	}
	if r.retry.MaxElapsed > 0 {
		b.MaxElapsedTime = r.retry.MaxElapsed
	}

	attempts := r.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(attempts-1)),
		ctx,
	)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return core.IsTransientError(err)
}
