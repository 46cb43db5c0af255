// AngelaMos | 2026
// handler.go

package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
)

const (
	SignatureHeader     = "X-Signature"
	defaultMaxBodyBytes = 1 << 20
)

type Handler struct {
	reconciler       *Reconciler
	decoder          *Decoder
	secret           []byte
	maxBodyBytes     int64
	acceptTestEvents bool
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

func NewHandler(
	cfg config.WebhookConfig,
	reconciler *Reconciler,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &Handler{
		reconciler:       reconciler,
		decoder:          NewDecoder(),
		secret:           []byte(cfg.Secret),
		maxBodyBytes:     maxBody,
		acceptTestEvents: cfg.AcceptTestEvents,
		metrics:          m,
		logger:           logger,
	}
}

// RegisterRoutes mounts the provider callback. It must stay outside any
// middleware that reads or rewrites the body, since the signature covers
// the exact bytes received.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/billing", h.Receive)
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	if len(h.secret) == 0 {
		h.logger.Error("webhook secret not configured",
			"error_kind", "configuration",
		)
		core.JSONError(w, core.ConfigurationError(errors.New("webhook secret missing")))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.WebhookRejected("too_large")
			core.JSONError(w, &core.AppError{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    core.CodeValidationFailed,
				Message: "payload too large",
			})
			return
		}
		h.metrics.WebhookRejected("unreadable")
		core.BadRequest(w, "unreadable request body")
		return
	}

	if !core.VerifySignature(raw, r.Header.Get(SignatureHeader), h.secret) {
		h.metrics.WebhookRejected("signature")
		h.logger.Warn("webhook signature rejected",
			"error_kind", "authentication",
			"remote_addr", r.RemoteAddr,
			"body_bytes", len(raw),
		)
		core.JSONError(w, core.UnauthorizedError("invalid signature"))
		return
	}

	ev, err := h.decoder.Decode(raw)
	if err != nil {
		h.metrics.WebhookRejected("malformed")
		h.logger.Warn("webhook payload rejected",
			"error_kind", "validation",
			"error", err,
		)
		core.BadRequest(w, "malformed webhook payload")
		return
	}

	if ev.TestMode && !h.acceptTestEvents {
		h.metrics.WebhookEvent(string(ev.Name), "test_mode")
		h.logger.Info("test mode webhook acknowledged without effect",
			"event", ev.Name,
			"object_id", ev.ObjectID,
		)
		core.JSON(w, http.StatusOK, receivedResponse{Received: true})
		return
	}

	if _, err := h.reconciler.Reconcile(r.Context(), ev, core.HashPayload(raw)); err != nil {
		core.JSONError(w, core.StoreError(err))
		return
	}

	core.JSON(w, http.StatusOK, receivedResponse{Received: true})
}
