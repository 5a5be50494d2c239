package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/availability"
	"github.com/agribeta/agribeta/services/api-service/internal/consultations"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/metrics"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/go-chi/chi/v5"
)

type bookRequest struct {
	AgronomistID    string    `json:"agronomist_id" validate:"required"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0,lte=240"`
	Topic           string    `json:"topic" validate:"singleline,max=200"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req bookRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.svc.Consultations.Book(r.Context(), p, consultations.BookRequest{
		AgronomistID: req.AgronomistID,
		Start:        req.StartTime,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
		Topic:        req.Topic,
		Notes:        req.Notes,
	})
	metrics.BookingTotal.WithLabelValues(bookingOutcome(err)).Inc()
	if err != nil {
		if errors.Is(err, entitlements.ErrLimitExceeded) {
			metrics.UsageRejectedTotal.WithLabelValues(string(entitlements.ActionConsultation)).Inc()
		}
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toConsultation(c))
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, availability.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, availability.ErrOutOfHours):
		return "out_of_hours"
	case errors.Is(err, availability.ErrDailyCapReached):
		return "daily_cap"
	case errors.Is(err, availability.ErrDateUnavailable):
		return "date_unavailable"
	case errors.Is(err, entitlements.ErrLimitExceeded):
		return "limit_exceeded"
	default:
		return "error"
	}
}

func (h *Handler) listConsultations(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	q := r.URL.Query()
	f := model.ConsultationFilter{
		AgronomistID: q.Get("agronomist_id"),
		FarmerID:     q.Get("farmer_id"),
		Status:       model.ConsultationStatus(q.Get("status")),
		Limit:        queryInt(r, "limit", 50),
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.WriteValidation(w, map[string]string{key: "must be an RFC 3339 timestamp"})
			return
		}
		*dst = &t
	}
	out, err := h.svc.Consultations.List(r.Context(), p, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"consultations": mapSlice(out, toConsultation)})
}

func (h *Handler) getConsultation(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	c, err := h.svc.Consultations.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toConsultation(c))
}

func (h *Handler) confirmConsultation(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	c, err := h.svc.Consultations.Confirm(r.Context(), p, chi.URLParam(r, "id"))
	h.writeTransition(w, r, model.StatusConfirmed, c, err)
}

func (h *Handler) completeConsultation(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	c, err := h.svc.Consultations.Complete(r.Context(), p, chi.URLParam(r, "id"))
	h.writeTransition(w, r, model.StatusCompleted, c, err)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) cancelConsultation(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if fields := h.validate.Struct(req); fields != nil {
		httpx.WriteValidation(w, fields)
		return
	}
	c, err := h.svc.Consultations.Cancel(r.Context(), p, chi.URLParam(r, "id"), req.Reason)
	h.writeTransition(w, r, model.StatusCancelled, c, err)
}

func (h *Handler) writeTransition(w http.ResponseWriter, r *http.Request, to model.ConsultationStatus, c model.Consultation, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	metrics.ConsultationTransitionsTotal.WithLabelValues(string(to)).Inc()
	httpx.WriteJSON(w, http.StatusOK, toConsultation(c))
}

func (h *Handler) agronomistSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.svc.Consultations.GetSchedule(r.Context(), id)
	h.writeSchedule(w, r, id, s, err)
}

func (h *Handler) mySchedule(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	s, err := h.svc.Consultations.OwnSchedule(r.Context(), p)
	h.writeSchedule(w, r, p.ID, s, err)
}

func (h *Handler) writeSchedule(w http.ResponseWriter, r *http.Request, agronomistID string, s consultations.Schedule, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, scheduleResponse{
		AgronomistID: agronomistID,
		Availability: toAvailabilityBody(s.Availability),
		SpecialDates: mapSlice(s.SpecialDates, toSpecialDate),
	})
}

func (h *Handler) updateAvailability(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req availabilityBody
	if !h.decode(w, r, &req) {
		return
	}
	av, err := h.svc.Consultations.UpdateAvailability(r.Context(), p, req.model())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAvailabilityBody(av))
}

func (h *Handler) putSpecialDate(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req specialDateBody
	if !h.decode(w, r, &req) {
		return
	}
	sd := model.SpecialDate{
		Date:        req.Date,
		Available:   req.Available,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Note:        req.Note,
	}
	if err := h.svc.Consultations.AddSpecialDate(r.Context(), p, sd); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) deleteSpecialDate(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	if err := h.svc.Consultations.DeleteSpecialDate(r.Context(), p, chi.URLParam(r, "date")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func durationParam(r *http.Request) time.Duration {
	return time.Duration(queryInt(r, "duration_minutes", 30)) * time.Minute
}

func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	date := r.URL.Query().Get("date")
	if date == "" {
		httpx.WriteValidation(w, map[string]string{"date": "is required"})
		return
	}
	d := durationParam(r)
	out, err := h.svc.Consultations.Slots(r.Context(), id, date, d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []time.Time{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"agronomist_id":    id,
		"date":             date,
		"duration_minutes": int(d / time.Minute),
		"slots":            out,
	})
}

type slotCheckResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// checkSlot reports whether start is bookable and, if not, which rule
// rejected it.
func (h *Handler) checkSlot(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		httpx.WriteValidation(w, map[string]string{"start": "must be an RFC 3339 timestamp"})
		return
	}
	err = h.svc.Consultations.CheckSlot(r.Context(), chi.URLParam(r, "id"), start, durationParam(r))
	if err == nil {
		httpx.WriteJSON(w, http.StatusOK, slotCheckResponse{Available: true})
		return
	}
	if e, ok := lookupError(err); ok && e.status < http.StatusInternalServerError && e.status != http.StatusNotFound {
		httpx.WriteJSON(w, http.StatusOK, slotCheckResponse{Reason: e.code, Message: err.Error()})
		return
	}
	h.writeError(w, r, err)
}
