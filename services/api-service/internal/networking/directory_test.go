package networking_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/cache"
	"github.com/agribeta/agribeta/services/api-service/internal/memstore"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/networking"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed() *memstore.Store {
	s := memstore.New()
	s.AddProfile(model.Profile{ID: "a1", FullName: "Dr. Otieno", Role: model.RoleAgronomist, IsVerified: true, Specialization: "Soil science", Location: "Kisumu", Bio: "Maize and sorghum"})
	s.AddProfile(model.Profile{ID: "a2", FullName: "Njeri", Role: model.RoleAgronomist, Specialization: "Horticulture", Location: "Nakuru"})
	s.AddProfile(model.Profile{ID: "f1", FullName: "Amina", Role: model.RoleFarmer, Location: "Kisumu", Bio: "Grows maize"})
	s.AddProfile(model.Profile{ID: "x1", FullName: "Root", Role: model.RoleAdmin})
	return s
}

func ids(users []networking.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func newDirectory(t *testing.T, store networking.Store, c cache.Cache) *networking.Directory {
	t.Helper()
	return networking.NewDirectory(store, c, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearchHidesAdminsAndUnverifiedAgronomists(t *testing.T) {
	d := newDirectory(t, seed(), nil)

	all, err := d.Search(context.Background(), networking.Query{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "f1"}, ids(all))

	agros, err := d.Search(context.Background(), networking.Query{Role: "Agronomist"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(agros))

	maize, err := d.Search(context.Background(), networking.Query{Search: "MAIZE"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "f1"}, ids(maize))

	loc, err := d.Search(context.Background(), networking.Query{Location: "nakuru"})
	require.NoError(t, err)
	assert.Empty(t, loc)
}

func TestSearchServesFromCache(t *testing.T) {
	store := seed()
	lru, err := cache.NewLRUCache(16)
	require.NoError(t, err)
	d := newDirectory(t, store, lru)

	first, err := d.Search(context.Background(), networking.Query{Role: "farmer"})
	require.NoError(t, err)
	store.AddProfile(model.Profile{ID: "f2", FullName: "Baraka", Role: model.RoleFarmer})

	cached, err := d.Search(context.Background(), networking.Query{Role: " farmer "})
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(cached))

	lru.Purge()
	fresh, err := d.Search(context.Background(), networking.Query{Role: "farmer"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f1", "f2"}, ids(fresh))
}

func TestSearchFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	d := newDirectory(t, seed(), cache.NewRedisCache(client, "agribeta:"))

	users, err := d.Search(context.Background(), networking.Query{Role: "agronomist"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(users))
	assert.NotEmpty(t, mr.Keys())

	mr.Close()
	users, err = d.Search(context.Background(), networking.Query{Role: "agronomist"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(users))
}
