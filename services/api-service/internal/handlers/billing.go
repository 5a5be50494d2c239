package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

// Gateways send small JSON documents; anything larger is not a webhook.
const maxWebhookBytes = 1 << 20

func (h *Handler) plans(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"plans": h.svc.Billing.Plans()})
}

type checkoutRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Billing.Checkout(r.Context(), p, model.Tier(req.Tier), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook body too large")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "could not read body")
		return
	}
	res, err := h.svc.Billing.HandleWebhook(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
