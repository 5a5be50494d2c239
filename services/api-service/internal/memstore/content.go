package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
)

func (s *Store) CreatePost(_ context.Context, p model.Post) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Tags == nil {
		p.Tags = []string{}
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.posts[p.ID] = p
	return p, nil
}

func (s *Store) GetPost(_ context.Context, id string) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return model.Post{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) SetPostPublished(_ context.Context, id string, published bool) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return model.Post{}, storage.ErrNotFound
	}
	p.Published = published
	p.UpdatedAt = s.now()
	s.posts[id] = p
	return p, nil
}

func (s *Store) ListPosts(_ context.Context, f model.PostFilter) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Post
	for _, p := range s.posts {
		if f.PublishedOnly && !p.Published {
			continue
		}
		if f.CropType != "" && p.CropType != f.CropType {
			continue
		}
		if f.AuthorID != "" && p.AuthorID != f.AuthorID {
			continue
		}
		if f.Search != "" && !containsFold(p.Title, f.Search) && !containsFold(p.Body, f.Search) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Post) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return truncate(out, f.Limit, 20, 100), nil
}

func (s *Store) InsertWeatherSnapshot(_ context.Context, w model.WeatherSnapshot) (model.WeatherSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = int64(len(s.weather) + 1)
	s.weather = append(s.weather, w)
	return w, nil
}

func (s *Store) LatestWeather(_ context.Context, location string, limit int) ([]model.WeatherSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WeatherSnapshot
	for _, w := range s.weather {
		if location == "" || strings.EqualFold(w.Location, location) {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b model.WeatherSnapshot) int { return b.ObservedAt.Compare(a.ObservedAt) })
	return truncate(out, limit, 10, 100), nil
}
