package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test"

type fakeStore struct {
	seen    map[string]bool
	changes []storage.TierChange
}

func (f *fakeStore) RecordProviderEvent(_ context.Context, evt model.ProviderEvent, change *storage.TierChange) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[evt.ProviderEventID] {
		return true, nil
	}
	f.seen[evt.ProviderEventID] = true
	if change != nil {
		f.changes = append(f.changes, *change)
	}
	return false, nil
}

func newTestService(store Store) *Service {
	return NewService(Config{
		SecretKey:     "sk_test",
		WebhookSecret: testSecret,
		PriceIDs:      map[model.Tier]string{model.TierBasic: "price_basic", model.TierPremium: "price_premium"},
		AppURL:        "https://app.example.com/",
	}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func signedEvent(t *testing.T, id, typ string, object map[string]any) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        typ,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return body, signed.Header
}

func TestCheckoutRequiresSecretKey(t *testing.T) {
	svc := NewService(Config{}, &fakeStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := svc.Checkout(context.Background(), model.Profile{ID: "u1"}, model.TierBasic, "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestCheckoutRejectsFreeTier(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.Checkout(context.Background(), model.Profile{ID: "u1"}, model.TierFree, "")
	require.ErrorIs(t, err, ErrInvalidTier)
}

func TestCheckoutSendsProfileMetadata(t *testing.T) {
	var got *stripe.CheckoutSessionParams
	svc := newTestService(&fakeStore{}).WithSessionCreator(func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
	})

	sess, err := svc.Checkout(context.Background(), model.Profile{ID: "u1", Email: "f@example.com"}, model.TierPremium, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.Metadata["profile_id"])
	assert.Equal(t, "premium", got.SubscriptionData.Metadata["tier"])
	assert.Equal(t, "price_premium", *got.LineItems[0].Price)
	assert.Equal(t, "idem-1", *got.IdempotencyKey)
	assert.Contains(t, *got.SuccessURL, "https://app.example.com/billing/success")
}

func TestCheckoutWrapsGatewayError(t *testing.T) {
	svc := newTestService(&fakeStore{}).WithSessionCreator(func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("boom")
	})
	_, err := svc.Checkout(context.Background(), model.Profile{ID: "u1"}, model.TierBasic, "")
	require.ErrorIs(t, err, ErrGateway)
}

func TestWebhookAppliesCheckoutOnce(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	body, sig := signedEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"object":   "checkout.session",
		"metadata": map[string]any{"profile_id": "u1", "tier": "basic"},
	})

	res, err := svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.Duplicate)

	res, err = svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Applied)

	require.Len(t, store.changes, 1)
	assert.Equal(t, storage.TierChange{ProfileID: "u1", Tier: model.TierBasic, Reason: "checkout completed"}, store.changes[0])
}

func TestWebhookSubscriptionDeletedDowngrades(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	body, sig := signedEvent(t, "evt_2", "customer.subscription.deleted", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"status":   "canceled",
		"metadata": map[string]any{"profile_id": "u1", "tier": "premium"},
	})

	_, err := svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	require.Len(t, store.changes, 1)
	assert.Equal(t, model.TierFree, store.changes[0].Tier)
}

func TestWebhookIgnoresInactiveSubscription(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	body, sig := signedEvent(t, "evt_3", "customer.subscription.updated", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"status":   "past_due",
		"metadata": map[string]any{"profile_id": "u1", "tier": "premium"},
	})

	res, err := svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, store.changes)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := newTestService(&fakeStore{})
	body, _ := signedEvent(t, "evt_4", "checkout.session.completed", map[string]any{"id": "cs_1"})
	_, err := svc.HandleWebhook(context.Background(), body, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)
}
