package handlers

import (
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

type profileResponse struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name"`
	Role               model.Role `json:"role"`
	SubscriptionTier   model.Tier `json:"subscription_tier"`
	IsVerified         bool       `json:"is_verified"`
	AIPredictionsLimit int        `json:"ai_predictions_limit"`
	LimitOverridden    bool       `json:"ai_predictions_limit_overridden"`
	Specialization     string     `json:"specialization,omitempty"`
	Location           string     `json:"location,omitempty"`
	Bio                string     `json:"bio,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toProfile(p model.Profile) profileResponse {
	return profileResponse{
		ID:                 p.ID,
		Email:              p.Email,
		FullName:           p.FullName,
		Role:               p.Role,
		SubscriptionTier:   p.Tier,
		IsVerified:         p.IsVerified,
		AIPredictionsLimit: entitlements.LimitFor(p, entitlements.ActionAIPrediction),
		LimitOverridden:    p.AILimitOverride != nil,
		Specialization:     p.Specialization,
		Location:           p.Location,
		Bio:                p.Bio,
		Phone:              p.Phone,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

type diagnosisResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ImageRef     string    `json:"image_ref"`
	CropType     string    `json:"crop_type,omitempty"`
	Disease      string    `json:"disease"`
	Confidence   float64   `json:"confidence"`
	Treatment    string    `json:"treatment"`
	Prevention   string    `json:"prevention"`
	ModelVersion string    `json:"model_version,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toDiagnosis(d model.DiagnosisResult) diagnosisResponse {
	return diagnosisResponse{
		ID:           d.ID,
		UserID:       d.UserID,
		ImageRef:     d.ImageRef,
		CropType:     d.CropType,
		Disease:      d.Disease,
		Confidence:   d.Confidence,
		Treatment:    d.Treatment,
		Prevention:   d.Prevention,
		ModelVersion: d.ModelVersion,
		CreatedAt:    d.CreatedAt,
	}
}

type consultationResponse struct {
	ID           string                   `json:"id"`
	AgronomistID string                   `json:"agronomist_id"`
	FarmerID     string                   `json:"farmer_id"`
	StartTime    time.Time                `json:"start_time"`
	EndTime      time.Time                `json:"end_time"`
	Status       model.ConsultationStatus `json:"status"`
	Topic        string                   `json:"topic,omitempty"`
	Notes        string                   `json:"notes,omitempty"`
	CancelReason string                   `json:"cancel_reason,omitempty"`
	CancelledBy  string                   `json:"cancelled_by,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

func toConsultation(c model.Consultation) consultationResponse {
	return consultationResponse{
		ID:           c.ID,
		AgronomistID: c.AgronomistID,
		FarmerID:     c.FarmerID,
		StartTime:    c.StartTime,
		EndTime:      c.EndTime,
		Status:       c.Status,
		Topic:        c.Topic,
		Notes:        c.Notes,
		CancelReason: c.CancelReason,
		CancelledBy:  c.CancelledBy,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type availabilityBody struct {
	Timezone        string `json:"timezone" validate:"required"`
	WorkStartMinute int    `json:"work_start_minute"`
	WorkEndMinute   int    `json:"work_end_minute"`
	WorkingDays     []int  `json:"working_days" validate:"dive,gte=0,lte=6"`
	BufferMinutes   int    `json:"buffer_minutes" validate:"gte=0"`
	MaxPerDay       int    `json:"max_consultations_per_day" validate:"gte=0"`
	SlotMinutes     int    `json:"slot_minutes"`
}

func toAvailabilityBody(av model.Availability) availabilityBody {
	days := make([]int, 0, len(av.WorkingDays))
	for _, d := range av.WorkingDays {
		days = append(days, int(d))
	}
	return availabilityBody{
		Timezone:        av.Timezone,
		WorkStartMinute: av.WorkStartMinute,
		WorkEndMinute:   av.WorkEndMinute,
		WorkingDays:     days,
		BufferMinutes:   av.BufferMinutes,
		MaxPerDay:       av.MaxPerDay,
		SlotMinutes:     av.SlotMinutes,
	}
}

func (b availabilityBody) model() model.Availability {
	days := make([]time.Weekday, 0, len(b.WorkingDays))
	for _, d := range b.WorkingDays {
		days = append(days, time.Weekday(d))
	}
	return model.Availability{
		Timezone:        b.Timezone,
		WorkStartMinute: b.WorkStartMinute,
		WorkEndMinute:   b.WorkEndMinute,
		WorkingDays:     days,
		BufferMinutes:   b.BufferMinutes,
		MaxPerDay:       b.MaxPerDay,
		SlotMinutes:     b.SlotMinutes,
	}
}

type specialDateBody struct {
	Date        string `json:"date" validate:"required,date"`
	Available   bool   `json:"available"`
	StartMinute *int   `json:"start_minute,omitempty"`
	EndMinute   *int   `json:"end_minute,omitempty"`
	Note        string `json:"note,omitempty" validate:"max=280"`
}

func toSpecialDate(sd model.SpecialDate) specialDateBody {
	return specialDateBody{
		Date:        sd.Date,
		Available:   sd.Available,
		StartMinute: sd.StartMinute,
		EndMinute:   sd.EndMinute,
		Note:        sd.Note,
	}
}

type scheduleResponse struct {
	AgronomistID string            `json:"agronomist_id"`
	Availability availabilityBody  `json:"availability"`
	SpecialDates []specialDateBody `json:"special_dates"`
}

type postResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CropType  string    `json:"crop_type,omitempty"`
	Tags      []string  `json:"tags"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPost(p model.Post) postResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return postResponse{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Body:      p.Body,
		CropType:  p.CropType,
		Tags:      tags,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type weatherBody struct {
	ID           int64     `json:"id,omitempty"`
	Location     string    `json:"location" validate:"notblank,max=120"`
	ObservedAt   time.Time `json:"observed_at"`
	TemperatureC float64   `json:"temperature_c" validate:"gte=-90,lte=60"`
	HumidityPct  float64   `json:"humidity_pct" validate:"gte=0,lte=100"`
	RainfallMM   float64   `json:"rainfall_mm" validate:"gte=0"`
	WindKPH      float64   `json:"wind_kph" validate:"gte=0"`
	Summary      string    `json:"summary,omitempty" validate:"max=280"`
}

func toWeather(w model.WeatherSnapshot) weatherBody {
	return weatherBody{
		ID:           w.ID,
		Location:     w.Location,
		ObservedAt:   w.ObservedAt,
		TemperatureC: w.TemperatureC,
		HumidityPct:  w.HumidityPct,
		RainfallMM:   w.RainfallMM,
		WindKPH:      w.WindKPH,
		Summary:      w.Summary,
	}
}

func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
