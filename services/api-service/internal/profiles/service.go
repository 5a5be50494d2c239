package profiles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

var ErrInvalidRole = errors.New("role must be farmer or agronomist")

type Store interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	CreateProfile(ctx context.Context, p model.Profile) (model.Profile, error)
	UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch, audit *model.AuditEvent) (model.Profile, error)
}

// Signup completes registration for an identity already verified upstream.
type Signup struct {
	Email          string
	FullName       string
	Role           model.Role
	Specialization string
	Location       string
	Bio            string
	Phone          string
}

// Changes is the self-service subset of a profile patch.
type Changes struct {
	FullName       *string
	Bio            *string
	Location       *string
	Specialization *string
	Phone          *string
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Register creates the profile for subject. New profiles start on the free
// tier and agronomists start unverified.
func (s *Service) Register(ctx context.Context, subject string, in Signup) (model.Profile, error) {
	if in.Role != model.RoleFarmer && in.Role != model.RoleAgronomist {
		return model.Profile{}, ErrInvalidRole
	}
	p, err := s.store.CreateProfile(ctx, model.Profile{
		ID:             subject,
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		FullName:       strings.TrimSpace(in.FullName),
		Role:           in.Role,
		Tier:           model.TierFree,
		Specialization: strings.TrimSpace(in.Specialization),
		Location:       strings.TrimSpace(in.Location),
		Bio:            strings.TrimSpace(in.Bio),
		Phone:          strings.TrimSpace(in.Phone),
	})
	if err != nil {
		return model.Profile{}, err
	}
	s.logger.InfoContext(ctx, "profile created", "profile_id", p.ID, "role", p.Role)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, c Changes) (model.Profile, error) {
	return s.store.UpdateProfile(ctx, id, model.ProfilePatch{
		FullName:       trimmed(c.FullName),
		Bio:            trimmed(c.Bio),
		Location:       trimmed(c.Location),
		Specialization: trimmed(c.Specialization),
		Phone:          trimmed(c.Phone),
	}, nil)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
