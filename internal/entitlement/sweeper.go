// AngelaMos | 2026
// sweeper.go

package entitlement

import (
	"context"
	"log/slog"
	"time"
)

type ExpiryRecorder interface {
	EntitlementsExpired(n int)
}

// Sweeper periodically normalises lapsed premium records so stored state
// eventually agrees with the derived premium flag.
type Sweeper struct {
	service  *Service
	interval time.Duration
	recorder ExpiryRecorder
	logger   *slog.Logger
}

func NewSweeper(
	service *Service,
	interval time.Duration,
	recorder ExpiryRecorder,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		recorder: recorder,
		logger:   logger,
	}
}

// Run blocks until ctx is done. A non-positive interval disables the loop.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.service.ExpireLapsed(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return 0
	}

	if s.recorder != nil {
		s.recorder.EntitlementsExpired(len(expired))
	}
	return len(expired)
}
