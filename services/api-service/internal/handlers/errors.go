package handlers

import (
	"errors"
	"net/http"

	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/admin"
	"github.com/agribeta/agribeta/services/api-service/internal/availability"
	"github.com/agribeta/agribeta/services/api-service/internal/billing"
	"github.com/agribeta/agribeta/services/api-service/internal/consultations"
	"github.com/agribeta/agribeta/services/api-service/internal/diagnosis"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/posts"
	"github.com/agribeta/agribeta/services/api-service/internal/profiles"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/agribeta/agribeta/services/api-service/internal/weather"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters only where one error wraps another.
var errorTable = []errorMapping{
	{storage.ErrNotFound, http.StatusNotFound, "not_found"},
	{storage.ErrDuplicate, http.StatusConflict, "duplicate"},
	{storage.ErrConflict, http.StatusConflict, "conflict"},

	{availability.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{consultations.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{availability.ErrOutOfHours, http.StatusUnprocessableEntity, "out_of_hours"},
	{availability.ErrDateUnavailable, http.StatusUnprocessableEntity, "date_unavailable"},
	{availability.ErrDailyCapReached, http.StatusUnprocessableEntity, "daily_cap_reached"},
	{consultations.ErrAgronomistUnavailable, http.StatusUnprocessableEntity, "agronomist_unavailable"},

	{availability.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{consultations.ErrInvalidSchedule, http.StatusBadRequest, "invalid_schedule"},
	{consultations.ErrStartInPast, http.StatusBadRequest, "start_in_past"},
	{entitlements.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{entitlements.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
	{diagnosis.ErrUnsupportedImage, http.StatusBadRequest, "unsupported_image"},
	{profiles.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{admin.ErrEmptyChange, http.StatusBadRequest, "empty_change"},
	{admin.ErrInvalid, http.StatusBadRequest, "invalid_change"},
	{billing.ErrInvalidTier, http.StatusBadRequest, "invalid_tier"},
	{billing.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},

	{consultations.ErrForbidden, http.StatusForbidden, "forbidden"},
	{posts.ErrForbidden, http.StatusForbidden, "forbidden"},
	{weather.ErrForbidden, http.StatusForbidden, "forbidden"},
	{admin.ErrForbidden, http.StatusForbidden, "forbidden"},

	{diagnosis.ErrModelFailed, http.StatusBadGateway, "model_failed"},
	{billing.ErrGateway, http.StatusBadGateway, "payment_gateway_error"},
	{diagnosis.ErrAnalyzerUnavailable, http.StatusServiceUnavailable, "diagnosis_unavailable"},
	{billing.ErrNotConfigured, http.StatusServiceUnavailable, "payments_unavailable"},
}

// limitBody is the 402 response that prompts the client to upgrade.
type limitBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Action     string `json:"action"`
	Limit      int    `json:"limit"`
	Used       int    `json:"used"`
	UpgradeURL string `json:"upgrade_url"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *entitlements.LimitError
	if errors.As(err, &le) {
		httpx.WriteJSON(w, http.StatusPaymentRequired, limitBody{
			Error:      "usage limit reached for your plan; upgrade to continue",
			Code:       "limit_exceeded",
			Action:     string(le.Action),
			Limit:      le.Limit,
			Used:       le.Used,
			UpgradeURL: "/pricing",
		})
		return
	}
	if m, ok := lookupError(err); ok {
		httpx.WriteError(w, m.status, m.code, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed",
		"request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}
