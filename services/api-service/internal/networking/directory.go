package networking

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/cache"
	"github.com/agribeta/agribeta/services/api-service/internal/metrics"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

const DefaultTTL = 60 * time.Second

type Store interface {
	ListProfiles(ctx context.Context, f model.ProfileFilter) ([]model.Profile, error)
}

// User is the public part of a profile shown in the directory.
type User struct {
	ID             string     `json:"id"`
	FullName       string     `json:"full_name"`
	Role           model.Role `json:"role"`
	IsVerified     bool       `json:"is_verified"`
	Specialization string     `json:"specialization,omitempty"`
	Location       string     `json:"location,omitempty"`
	Bio            string     `json:"bio,omitempty"`
}

type Query struct {
	Role           string
	Search         string
	Specialization string
	Location       string
}

type Directory struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewDirectory(store Store, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{store: store, cache: c, ttl: ttl, logger: logger}
}

// Search lists public profiles. Agronomists are listed only once verified.
// Cache failures fall through to the database.
func (d *Directory) Search(ctx context.Context, q Query) ([]User, error) {
	q = normalize(q)
	key := cacheKey(q)

	var users []User
	if d.cache != nil {
		err := d.cache.Get(ctx, key, &users)
		switch {
		case err == nil:
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return users, nil
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		default:
			metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			d.logger.WarnContext(ctx, "directory cache read failed", "err", err)
		}
	}

	role := model.Role(q.Role)
	profiles, err := d.store.ListProfiles(ctx, model.ProfileFilter{
		Role:           role,
		Search:         q.Search,
		Specialization: q.Specialization,
		Location:       q.Location,
		VerifiedOnly:   role == model.RoleAgronomist,
		Limit:          100,
	})
	if err != nil {
		return nil, err
	}

	users = make([]User, 0, len(profiles))
	for _, p := range profiles {
		if p.Role == model.RoleAdmin {
			continue
		}
		if p.Role == model.RoleAgronomist && !p.IsVerified {
			continue
		}
		users = append(users, User{
			ID:             p.ID,
			FullName:       p.FullName,
			Role:           p.Role,
			IsVerified:     p.IsVerified,
			Specialization: p.Specialization,
			Location:       p.Location,
			Bio:            p.Bio,
		})
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, key, users, d.ttl); err != nil {
			d.logger.WarnContext(ctx, "directory cache write failed", "err", err)
		}
	}
	return users, nil
}

func normalize(q Query) Query {
	return Query{
		Role:           strings.ToLower(strings.TrimSpace(q.Role)),
		Search:         strings.TrimSpace(q.Search),
		Specialization: strings.TrimSpace(q.Specialization),
		Location:       strings.TrimSpace(q.Location),
	}
}

func cacheKey(q Query) string {
	h := sha1.Sum([]byte(strings.ToLower(strings.Join([]string{q.Role, q.Search, q.Specialization, q.Location}, "\x00"))))
	return "networking:users:" + hex.EncodeToString(h[:])
}
