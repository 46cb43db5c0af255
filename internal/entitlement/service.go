// AngelaMos | 2026
// service.go

package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
)

const CauseSweep = "expiry_sweep"

// Change describes one committed entitlement write.
type Change struct {
	UserID     string
	Cause      string
	Before     Record
	After      Record
	OccurredAt time.Time
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

type Result struct {
	Outcome Outcome
	Before  Record
	After   Record
}

type Service struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock used for derived premium status.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Get returns the user's record, or the implicit free record when the store
// has never seen the user.
func (s *Service) Get(ctx context.Context, userID string) (Record, error) {
	rec, err := s.repo.Get(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return NewRecord(userID), nil
	}
	if err != nil {
		return Record{}, err
	}

	return *rec, nil
}

func (s *Service) GetExisting(ctx context.Context, userID string) (Record, error) {
	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}

	return *rec, nil
}

// ResolveUserID finds whose entitlement an event is about. Grants must name
// the user; cancellation and expiry may instead be matched by subscription.
func (s *Service) ResolveUserID(ctx context.Context, ev Event) (string, error) {
	if ev.UserID != "" {
		return ev.UserID, nil
	}

	if ev.Name.Grants() || ev.SubscriptionID == "" {
		return "", fmt.Errorf("resolve user: %w", core.ErrNotFound)
	}

	rec, err := s.repo.FindBySubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	return rec.UserID, nil
}

// Apply runs the transition for ev against the user's locked record and
// persists the result. Safe to call again with the same event.
func (s *Service) Apply(ctx context.Context, userID string, ev Event) (Result, error) {
	var res Result

	stored, err := s.repo.Mutate(ctx, userID, func(current Record) (Record, bool, error) {
		next, outcome := Transition(current, ev, s.Now())
		res = Result{Outcome: outcome, Before: current}
		return next, outcome == OutcomeApplied, nil
	})
	if err != nil {
		return Result{}, err
	}
	res.After = stored

	if res.Outcome == OutcomeApplied {
		s.publish(ctx, Change{
			UserID:     userID,
			Cause:      string(ev.Name),
			Before:     res.Before,
			After:      res.After,
			OccurredAt: s.Now(),
		})
	}

	return res, nil
}

// RecordUsage increments the premium feature counter. Users without current
// premium access get core.ErrForbidden.
func (s *Service) RecordUsage(ctx context.Context, userID string) (Record, error) {
	now := s.Now()

	return s.repo.Mutate(ctx, userID, func(current Record) (Record, bool, error) {
		if !current.IsPremium(now) {
			return current, false, fmt.Errorf("record usage: %w", core.ErrForbidden)
		}
		current.UsageCounter++
		return current, true, nil
	})
}

// ExpireLapsed normalises premium records whose paid period has ended to free.
func (s *Service) ExpireLapsed(ctx context.Context) ([]Record, error) {
	now := s.Now()

	expired, err := s.repo.ExpireLapsed(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, rec := range expired {
		s.publish(ctx, Change{
			UserID:     rec.UserID,
			Cause:      CauseSweep,
			After:      rec,
			OccurredAt: now,
		})
	}

	if len(expired) > 0 {
		s.logger.Info("expired lapsed entitlements", "count", len(expired))
	}

	return expired, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx, s.Now())
}

// publish is best effort; the store is the source of truth.
func (s *Service) publish(ctx context.Context, change Change) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("publish entitlement change failed",
			"user_id", change.UserID,
			"cause", change.Cause,
			"error", err,
		)
	}
}
