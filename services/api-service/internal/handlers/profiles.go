package handlers

import (
	"net/http"
	"strings"

	"github.com/agribeta/agribeta/libs/auth"
	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/networking"
	"github.com/agribeta/agribeta/services/api-service/internal/profiles"
)

type signupRequest struct {
	Email          string `json:"email" validate:"omitempty,email"`
	FullName       string `json:"full_name" validate:"notblank,singleline,max=120"`
	Role           string `json:"role" validate:"required,signup_role"`
	Specialization string `json:"specialization" validate:"singleline,max=120"`
	Location       string `json:"location" validate:"singleline,max=120"`
	Bio            string `json:"bio" validate:"max=2000"`
	Phone          string `json:"phone" validate:"singleline,max=32"`
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}
	email := req.Email
	if principal.Email != "" {
		email = principal.Email
	}
	if strings.TrimSpace(email) == "" {
		httpx.WriteValidation(w, map[string]string{"email": "is required"})
		return
	}
	p, err := h.svc.Profiles.Register(r.Context(), principal.Subject, profiles.Signup{
		Email:          email,
		FullName:       req.FullName,
		Role:           model.Role(req.Role),
		Specialization: req.Specialization,
		Location:       req.Location,
		Bio:            req.Bio,
		Phone:          req.Phone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toProfile(p))
}

type meResponse struct {
	profileResponse
	Usage []entitlements.UsageSummary `json:"usage"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	usage, err := h.svc.Usage.Summary(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{profileResponse: toProfile(p), Usage: usage})
}

type updateMeRequest struct {
	FullName       *string `json:"full_name" validate:"omitempty,notblank,singleline,max=120"`
	Bio            *string `json:"bio" validate:"omitempty,max=2000"`
	Location       *string `json:"location" validate:"omitempty,singleline,max=120"`
	Specialization *string `json:"specialization" validate:"omitempty,singleline,max=120"`
	Phone          *string `json:"phone" validate:"omitempty,singleline,max=32"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req updateMeRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.svc.Profiles.Update(r.Context(), p.ID, profiles.Changes{
		FullName:       req.FullName,
		Bio:            req.Bio,
		Location:       req.Location,
		Specialization: req.Specialization,
		Phone:          req.Phone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfile(out))
}

type usageResponse struct {
	Tier   model.Tier                  `json:"subscription_tier"`
	Period string                      `json:"period"`
	Usage  []entitlements.UsageSummary `json:"usage"`
}

func (h *Handler) usageSummary(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	usage, err := h.svc.Usage.Summary(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, usageResponse{
		Tier:   p.Tier,
		Period: h.svc.Usage.CurrentPeriod().Format("2006-01"),
		Usage:  usage,
	})
}

// usageCheck answers canUseService for the caller without consuming anything.
func (h *Handler) usageCheck(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	action := entitlements.Action(r.URL.Query().Get("action"))
	ok, err := h.svc.Usage.CanUseService(r.Context(), p.ID, action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"action": action, "allowed": ok})
}

func (h *Handler) networkingUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.svc.Directory.Search(r.Context(), networking.Query{
		Role:           q.Get("role"),
		Search:         q.Get("search"),
		Specialization: q.Get("specialization"),
		Location:       q.Get("location"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}
