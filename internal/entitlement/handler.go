// AngelaMos | 2026
// handler.go

package entitlement

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/entitlements", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/me", h.GetMe)
		r.Post("/me/usage", h.RecordUsage)
	})
}

// RegisterAdminRoutes registers support endpoints for inspecting and
// normalising entitlements.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/entitlements", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Post("/sweep", h.Sweep)
		r.Get("/{userID}", h.GetUser)
	})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	rec, err := h.service.Get(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, core.StoreError(err))
		return
	}

	core.OK(w, ToEntitlementResponse(&rec, h.service.Now()))
}

func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	rec, err := h.service.RecordUsage(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrForbidden) {
			core.Forbidden(w, "premium entitlement required")
			return
		}
		core.InternalServerError(w, core.StoreError(err))
		return
	}

	core.OK(w, ToEntitlementResponse(&rec, h.service.Now()))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := h.service.GetExisting(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "entitlement")
			return
		}
		core.InternalServerError(w, core.StoreError(err))
		return
	}

	core.OK(w, ToAdminEntitlementResponse(&rec, h.service.Now()))
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.ExpireLapsed(r.Context())
	if err != nil {
		core.InternalServerError(w, core.StoreError(err))
		return
	}

	core.OK(w, ToSweepResponse(expired))
}
