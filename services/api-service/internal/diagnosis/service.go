package diagnosis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/metrics"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/google/uuid"
)

type Store interface {
	CreateDiagnosis(ctx context.Context, d model.DiagnosisResult, charge entitlements.UsageCharge) (model.DiagnosisResult, error)
	GetDiagnosis(ctx context.Context, id string) (model.DiagnosisResult, error)
	ListDiagnoses(ctx context.Context, userID string, limit int) ([]model.DiagnosisResult, error)
}

type Charger interface {
	Charge(ctx context.Context, p model.Profile, action entitlements.Action, amount int) (entitlements.UsageCharge, error)
}

type Service struct {
	store    Store
	charger  Charger
	images   ImageStore
	analyzer Analyzer
	catalog  *Catalog
	logger   *slog.Logger
}

// NewService wires the diagnosis flow. analyzer may be nil, in which case
// Analyze returns ErrAnalyzerUnavailable.
func NewService(store Store, charger Charger, images ImageStore, analyzer Analyzer, catalog *Catalog, logger *slog.Logger) *Service {
	return &Service{store: store, charger: charger, images: images, analyzer: analyzer, catalog: catalog, logger: logger}
}

// Analyze runs one AI diagnosis for p. A profile at its limit is rejected
// before the model is called; the usage charge and the result row are
// written together.
func (s *Service) Analyze(ctx context.Context, p model.Profile, img Image) (model.DiagnosisResult, error) {
	if s.analyzer == nil {
		metrics.DiagnosisTotal.WithLabelValues("unavailable").Inc()
		return model.DiagnosisResult{}, ErrAnalyzerUnavailable
	}
	ct, err := SniffImage(img.Data)
	if err != nil {
		return model.DiagnosisResult{}, err
	}
	img.ContentType = ct

	charge, err := s.charger.Charge(ctx, p, entitlements.ActionAIPrediction, 1)
	if err != nil {
		s.rejected(ctx, p, err)
		return model.DiagnosisResult{}, err
	}

	ref, err := s.images.Save(ctx, img)
	if err != nil {
		metrics.DiagnosisTotal.WithLabelValues("error").Inc()
		return model.DiagnosisResult{}, err
	}

	pred, err := s.analyzer.Analyze(ctx, img)
	if err != nil {
		s.discard(ctx, ref)
		metrics.DiagnosisTotal.WithLabelValues("model_error").Inc()
		s.logger.ErrorContext(ctx, "diagnosis model failed", "profile_id", p.ID, "err", err)
		return model.DiagnosisResult{}, err
	}

	disease, _ := s.catalog.Lookup(pred.Label)
	d := model.DiagnosisResult{
		ID:           uuid.NewString(),
		UserID:       p.ID,
		ImageRef:     ref,
		CropType:     firstNonEmpty(img.CropType, pred.CropType, disease.Crop),
		Disease:      disease.Name,
		Confidence:   pred.Confidence,
		Treatment:    disease.Treatment,
		Prevention:   disease.Prevention,
		ModelVersion: pred.ModelVersion,
	}
	out, err := s.store.CreateDiagnosis(ctx, d, charge)
	if err != nil {
		s.discard(ctx, ref)
		s.rejected(ctx, p, err)
		return model.DiagnosisResult{}, err
	}
	metrics.DiagnosisTotal.WithLabelValues("ok").Inc()
	s.logger.InfoContext(ctx, "diagnosis recorded", "diagnosis_id", out.ID, "profile_id", p.ID, "disease", out.Disease)
	return out, nil
}

func (s *Service) rejected(ctx context.Context, p model.Profile, err error) {
	if errors.Is(err, entitlements.ErrLimitExceeded) {
		metrics.DiagnosisTotal.WithLabelValues("limit_exceeded").Inc()
		metrics.UsageRejectedTotal.WithLabelValues(string(entitlements.ActionAIPrediction)).Inc()
		s.logger.InfoContext(ctx, "diagnosis blocked by usage limit", "profile_id", p.ID, "tier", p.Tier)
		return
	}
	metrics.DiagnosisTotal.WithLabelValues("error").Inc()
	s.logger.ErrorContext(ctx, "diagnosis failed", "profile_id", p.ID, "err", err)
}

func (s *Service) discard(ctx context.Context, ref string) {
	if err := s.images.Delete(ctx, ref); err != nil {
		s.logger.WarnContext(ctx, "failed to remove uploaded image", "ref", ref, "err", err)
	}
}

func (s *Service) Get(ctx context.Context, actor model.Profile, id string) (model.DiagnosisResult, error) {
	d, err := s.store.GetDiagnosis(ctx, id)
	if err != nil {
		return model.DiagnosisResult{}, err
	}
	if d.UserID != actor.ID && !actor.IsAdmin() {
		// Hide other users' results entirely.
		return model.DiagnosisResult{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, actor model.Profile, limit int) ([]model.DiagnosisResult, error) {
	return s.store.ListDiagnoses(ctx, actor.ID, limit)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
