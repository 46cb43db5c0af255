// AngelaMos | 2026
// handler.go

package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, limiter func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		if limiter != nil {
			r.Use(limiter)
		}

		r.Post("/checkout", h.Create)
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	ctx := r.Context()
	email := req.Email
	if email == "" {
		email = middleware.GetUserEmail(ctx)
	}

	session, err := h.service.CreateCheckout(ctx, middleware.GetUserID(ctx), email, req.VariantID)
	if err != nil {
		core.JSONError(w, toAppError(err))
		return
	}

	core.Created(w, CheckoutResponse{CheckoutURL: session.URL})
}

func toAppError(err error) *core.AppError {
	var rejected *ProviderRejectedError

	switch {
	case errors.Is(err, ErrMissingParameters):
		return core.ValidationError("user and variant_id are required")
	case errors.Is(err, ErrMisconfigured):
		return core.ConfigurationError(err)
	case errors.As(err, &rejected):
		return core.UpstreamError("checkout rejected by provider", rejected.Details, err)
	case errors.Is(err, ErrProviderTimeout):
		return core.UpstreamTimeoutError(err)
	default:
		return core.UpstreamError("checkout provider unavailable", nil, err)
	}
}
