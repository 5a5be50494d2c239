package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrNotConfigured    = errors.New("payment gateway not configured")
	ErrInvalidTier      = errors.New("tier is not purchasable")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrGateway          = errors.New("payment gateway request failed")
)

type Config struct {
	SecretKey        string
	WebhookSecret    string
	PriceIDs         map[model.Tier]string
	AppURL           string
	WebhookTolerance time.Duration
}

type Store interface {
	RecordProviderEvent(ctx context.Context, evt model.ProviderEvent, change *storage.TierChange) (bool, error)
}

// SessionCreator creates a hosted checkout session at the gateway.
type SessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

type Service struct {
	cfg     Config
	store   Store
	logger  *slog.Logger
	creator SessionCreator
}

func NewService(cfg Config, store Store, logger *slog.Logger) *Service {
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	client := session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	return &Service{cfg: cfg, store: store, logger: logger, creator: client.New}
}

// WithSessionCreator replaces the gateway call, for tests and local stubs.
func (s *Service) WithSessionCreator(c SessionCreator) *Service {
	s.creator = c
	return s
}

type PlanView struct {
	entitlements.Plan
	Purchasable bool `json:"purchasable"`
}

func (s *Service) Plans() []PlanView {
	var out []PlanView
	for _, p := range entitlements.Plans() {
		out = append(out, PlanView{Plan: p, Purchasable: s.cfg.PriceIDs[p.Tier] != ""})
	}
	return out
}

type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Checkout opens a subscription checkout for p. The profile id and tier ride
// along as metadata so the webhook can apply the upgrade.
func (s *Service) Checkout(ctx context.Context, p model.Profile, tier model.Tier, idempotencyKey string) (CheckoutSession, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return CheckoutSession{}, ErrNotConfigured
	}
	priceID := s.cfg.PriceIDs[tier]
	if tier == model.TierFree || priceID == "" {
		return CheckoutSession{}, ErrInvalidTier
	}

	base := strings.TrimRight(s.cfg.AppURL, "/")
	meta := map[string]string{"profile_id": p.ID, "tier": string(tier)}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(base + "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(base + "/billing/cancel?tier=" + url.QueryEscape(string(tier))),
		ClientReferenceID: stripe.String(p.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		Metadata:         meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
	}
	if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	sess, err := s.creator(params)
	if err != nil {
		s.logger.ErrorContext(ctx, "stripe checkout session create failed", "profile_id", p.ID, "err", err)
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	s.logger.InfoContext(ctx, "checkout session created", "profile_id", p.ID, "tier", tier, "session_id", sess.ID)
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Applied   bool   `json:"applied"`
}

// HandleWebhook verifies and applies one gateway delivery. Replays are
// acknowledged without side effects.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if strings.TrimSpace(s.cfg.WebhookSecret) == "" {
		return WebhookResult{}, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(body, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	res := WebhookResult{EventID: evt.ID, EventType: string(evt.Type)}
	change, err := tierChangeFor(evt)
	if err != nil {
		s.logger.WarnContext(ctx, "stripe event not applied", "event_id", evt.ID, "event_type", evt.Type, "err", err)
	}

	dup, err := s.store.RecordProviderEvent(ctx, model.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       string(evt.Type),
		Payload:         body,
	}, change)
	if err != nil {
		return res, err
	}
	res.Duplicate = dup
	res.Applied = change != nil && !dup
	s.logger.InfoContext(ctx, "billing provider event received",
		"provider", "stripe", "event_id", evt.ID, "event_type", evt.Type, "duplicate", dup, "applied", res.Applied)
	return res, nil
}

// tierChangeFor maps gateway events to tier changes. A nil change with nil
// error means the event type is ignored.
func tierChangeFor(evt stripe.Event) (*storage.TierChange, error) {
	switch evt.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return changeFromMetadata(sess.Metadata, "checkout completed")

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			return nil, nil
		}
		return changeFromMetadata(sub.Metadata, "subscription "+string(sub.Status))

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		profileID := strings.TrimSpace(sub.Metadata["profile_id"])
		if profileID == "" {
			return nil, errors.New("subscription without profile_id metadata")
		}
		return &storage.TierChange{ProfileID: profileID, Tier: model.TierFree, Reason: "subscription deleted"}, nil
	}
	return nil, nil
}

func changeFromMetadata(meta map[string]string, reason string) (*storage.TierChange, error) {
	profileID := strings.TrimSpace(meta["profile_id"])
	tier := model.Tier(strings.ToLower(strings.TrimSpace(meta["tier"])))
	if profileID == "" || !tier.Valid() {
		return nil, fmt.Errorf("missing or invalid metadata (profile_id=%q tier=%q)", profileID, tier)
	}
	return &storage.TierChange{ProfileID: profileID, Tier: tier, Reason: reason}, nil
}
