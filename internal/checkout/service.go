// AngelaMos | 2026
// service.go

package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
)

type Provider interface {
	CreateCheckout(ctx context.Context, req Request) (string, error)
}

type Session struct {
	UserID    string
	VariantID string
	URL       string
}

type Service struct {
	provider Provider
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(
	provider Provider,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		provider: provider,
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
	}
}

// CreateCheckout starts a hosted purchase for userID. The user id is
// embedded as custom data so the resulting webhooks can be correlated.
func (s *Service) CreateCheckout(
	ctx context.Context,
	userID, email, variantID string,
) (*Session, error) {
	req := Request{
		UserID:    strings.TrimSpace(userID),
		Email:     strings.TrimSpace(email),
		VariantID: strings.TrimSpace(variantID),
	}

	if req.UserID == "" || req.VariantID == "" {
		s.metrics.CheckoutRequest("missing_parameters")
		return nil, ErrMissingParameters
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger := s.logger.With("user_id", req.UserID, "variant_id", req.VariantID)

	start := time.Now()
	url, err := s.provider.CreateCheckout(ctx, req)
	s.metrics.ObserveCheckout(time.Since(start))

	if err != nil {
		var rejected *ProviderRejectedError
		switch {
		case errors.Is(err, ErrMisconfigured):
			s.metrics.CheckoutRequest("misconfigured")
			logger.Error("checkout provider not configured",
				"error_kind", "configuration",
			)
		case errors.As(err, &rejected):
			s.metrics.CheckoutRequest("rejected")
			logger.Warn("checkout rejected by provider",
				"error_kind", "upstream",
				"status", rejected.Status,
				"details", rejected.Details,
			)
		case errors.Is(err, ErrProviderTimeout):
			s.metrics.CheckoutRequest("timeout")
			logger.Warn("checkout provider timed out",
				"error_kind", "upstream",
				"timeout", s.timeout,
			)
		default:
			s.metrics.CheckoutRequest("error")
			logger.Error("checkout provider call failed",
				"error_kind", "upstream",
				"error", err,
			)
		}
		return nil, err
	}

	s.metrics.CheckoutRequest("created")
	logger.Info("checkout created")

	return &Session{
		UserID:    req.UserID,
		VariantID: req.VariantID,
		URL:       url,
	}, nil
}
