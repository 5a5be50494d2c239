package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/admin"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) adminListProfiles(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	q := r.URL.Query()
	out, err := h.svc.Admin.ListProfiles(r.Context(), p, model.ProfileFilter{
		Role:   model.Role(q.Get("role")),
		Search: q.Get("search"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"profiles": mapSlice(out, toProfile)})
}

// adminPatch keeps ai_predictions_limit raw so an explicit null, which clears
// the override, can be told apart from an absent field.
type adminPatch struct {
	Role       *string         `json:"role" validate:"omitempty,role"`
	IsVerified *bool           `json:"is_verified"`
	Tier       *string         `json:"subscription_tier" validate:"omitempty,tier"`
	AILimit    json.RawMessage `json:"ai_predictions_limit"`
}

func (h *Handler) adminUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req adminPatch
	if !h.decode(w, r, &req) {
		return
	}
	var c admin.Changes
	if req.Role != nil {
		role := model.Role(*req.Role)
		c.Role = &role
	}
	if req.Tier != nil {
		tier := model.Tier(*req.Tier)
		c.Tier = &tier
	}
	c.IsVerified = req.IsVerified
	if len(req.AILimit) > 0 {
		if bytes.Equal(bytes.TrimSpace(req.AILimit), []byte("null")) {
			c.ClearAILimit = true
		} else {
			var n int
			if err := json.Unmarshal(req.AILimit, &n); err != nil {
				httpx.WriteValidation(w, map[string]string{"ai_predictions_limit": "must be an integer or null"})
				return
			}
			c.AILimit = &n
		}
	}
	out, err := h.svc.Admin.UpdateProfile(r.Context(), p, chi.URLParam(r, "id"), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfile(out))
}

// adminUsageExport streams the month's usage as a spreadsheet. month is
// YYYY-MM and defaults to the current month.
func (h *Handler) adminUsageExport(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var month time.Time
	if v := r.URL.Query().Get("month"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			httpx.WriteValidation(w, map[string]string{"month": "must be YYYY-MM"})
			return
		}
		month = t
	}
	period, rows, err := h.svc.Admin.UsageReport(r.Context(), p, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := admin.WriteUsageWorkbook(&buf, period, rows); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+admin.UsageFilename(period)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
