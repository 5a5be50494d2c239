package posts

import (
	"context"
	"errors"
	"strings"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/google/uuid"
)

var ErrForbidden = errors.New("not allowed to manage posts")

type Store interface {
	CreatePost(ctx context.Context, p model.Post) (model.Post, error)
	GetPost(ctx context.Context, id string) (model.Post, error)
	SetPostPublished(ctx context.Context, id string, published bool) (model.Post, error)
	ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type Draft struct {
	Title    string
	Body     string
	CropType string
	Tags     []string
	Publish  bool
}

// Create is open to agronomists and admins.
func (s *Service) Create(ctx context.Context, author model.Profile, d Draft) (model.Post, error) {
	if author.Role != model.RoleAgronomist && !author.IsAdmin() {
		return model.Post{}, ErrForbidden
	}
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return s.store.CreatePost(ctx, model.Post{
		ID:        uuid.NewString(),
		AuthorID:  author.ID,
		Title:     strings.TrimSpace(d.Title),
		Body:      d.Body,
		CropType:  strings.ToLower(strings.TrimSpace(d.CropType)),
		Tags:      tags,
		Published: d.Publish,
	})
}

// Get hides unpublished posts from everyone but the author and admins.
func (s *Service) Get(ctx context.Context, viewer *model.Profile, id string) (model.Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, err
	}
	if !p.Published && (viewer == nil || (viewer.ID != p.AuthorID && !viewer.IsAdmin())) {
		return model.Post{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f model.PostFilter) ([]model.Post, error) {
	f.PublishedOnly = true
	return s.store.ListPosts(ctx, f)
}

func (s *Service) SetPublished(ctx context.Context, actor model.Profile, id string, published bool) (model.Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, err
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin() {
		return model.Post{}, ErrForbidden
	}
	return s.store.SetPostPublished(ctx, id, published)
}
