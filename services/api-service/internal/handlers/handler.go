// Package handlers exposes the api-service over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/agribeta/agribeta/libs/auth"
	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/admin"
	"github.com/agribeta/agribeta/services/api-service/internal/billing"
	"github.com/agribeta/agribeta/services/api-service/internal/consultations"
	"github.com/agribeta/agribeta/services/api-service/internal/diagnosis"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/networking"
	"github.com/agribeta/agribeta/services/api-service/internal/posts"
	"github.com/agribeta/agribeta/services/api-service/internal/profiles"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/agribeta/agribeta/services/api-service/internal/validation"
	"github.com/agribeta/agribeta/services/api-service/internal/weather"
	"github.com/go-chi/chi/v5"
)

type Services struct {
	Profiles      *profiles.Service
	Usage         *entitlements.Service
	Diagnosis     *diagnosis.Service
	Consultations *consultations.Service
	Directory     *networking.Directory
	Posts         *posts.Service
	Weather       *weather.Service
	Billing       *billing.Service
	Admin         *admin.Service
}

type Config struct {
	MaxUploadBytes int64
	// UploadLimiter throttles diagnosis uploads; nil disables it.
	UploadLimiter httpx.Middleware
}

type Handler struct {
	svc      Services
	verifier *auth.Verifier
	validate *validation.Validator
	logger   *slog.Logger
	cfg      Config
}

func New(svc Services, verifier *auth.Verifier, logger *slog.Logger, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 8 << 20
	}
	return &Handler{svc: svc, verifier: verifier, validate: validation.New(), logger: logger, cfg: cfg}
}

// Routes mounts every API route on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/api/v1/billing/plans", h.plans)
	r.Post("/api/v1/billing/webhooks/stripe", h.stripeWebhook)
	r.Get("/api/v1/weather", h.latestWeather)
	r.Group(func(r chi.Router) {
		r.Use(h.optionalProfile)
		r.Get("/api/v1/posts", h.listPosts)
		r.Get("/api/v1/posts/{id}", h.getPost)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer(h.verifier))
		r.Post("/api/v1/profiles", h.createProfile)

		r.Group(func(r chi.Router) {
			r.Use(h.requireProfile)

			r.Get("/api/v1/me", h.me)
			r.Patch("/api/v1/me", h.updateMe)
			r.Get("/api/v1/usage", h.usageSummary)
			r.Get("/api/v1/usage/check", h.usageCheck)

			r.Get("/api/networking/users", h.networkingUsers)

			r.With(h.uploadLimit).Post("/api/v1/diagnoses", h.analyze)
			r.Get("/api/v1/diagnoses", h.listDiagnoses)
			r.Get("/api/v1/diagnoses/{id}", h.getDiagnosis)

			r.Get("/api/v1/agronomists/{id}/schedule", h.agronomistSchedule)
			r.Get("/api/v1/agronomists/{id}/slots", h.slots)
			r.Get("/api/v1/agronomists/{id}/slots/check", h.checkSlot)

			r.Post("/api/v1/consultations", h.book)
			r.Get("/api/v1/consultations", h.listConsultations)
			r.Get("/api/v1/consultations/{id}", h.getConsultation)
			r.Post("/api/v1/consultations/{id}/confirm", h.confirmConsultation)
			r.Post("/api/v1/consultations/{id}/complete", h.completeConsultation)
			r.Post("/api/v1/consultations/{id}/cancel", h.cancelConsultation)

			r.Get("/api/v1/availability", h.mySchedule)
			r.Put("/api/v1/availability", h.updateAvailability)
			r.Put("/api/v1/availability/special-dates", h.putSpecialDate)
			r.Delete("/api/v1/availability/special-dates/{date}", h.deleteSpecialDate)

			r.Post("/api/v1/posts", h.createPost)
			r.Post("/api/v1/posts/{id}/publish", h.publishPost)
			r.Post("/api/v1/posts/{id}/unpublish", h.unpublishPost)

			r.Post("/api/v1/billing/checkout", h.checkout)

			r.Get("/api/v1/admin/profiles", h.adminListProfiles)
			r.Patch("/api/v1/admin/profiles/{id}", h.adminUpdateProfile)
			r.Get("/api/v1/admin/usage/export", h.adminUsageExport)
			r.Post("/api/v1/admin/weather", h.ingestWeather)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

type profileKey struct{}

func withProfile(ctx context.Context, p model.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

func profileFrom(ctx context.Context) (model.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(model.Profile)
	return p, ok
}

// requireProfile loads the caller's profile fresh for every request, so role
// and tier changes apply immediately.
func (h *Handler) requireProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}
		p, err := h.svc.Profiles.Get(r.Context(), principal.Subject)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusForbidden, "profile_required", "complete signup before using the API")
			return
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withProfile(r.Context(), p)))
	})
}

// optionalProfile attaches the caller's profile when a valid bearer token is
// sent and leaves anonymous requests untouched.
func (h *Handler) optionalProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth.RequireBearer(h.verifier)(h.requireProfile(next)).ServeHTTP(w, r)
	})
}

func (h *Handler) uploadLimit(next http.Handler) http.Handler {
	if h.cfg.UploadLimiter == nil {
		return next
	}
	return h.cfg.UploadLimiter(next)
}

// SubjectKey keys rate limits by verified subject, falling back to the
// client address.
func SubjectKey(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return "sub:" + p.Subject
	}
	return "ip:" + httpx.ClientIP(r)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return false
	}
	if fields := h.validate.Struct(v); fields != nil {
		httpx.WriteValidation(w, fields)
		return false
	}
	return true
}
