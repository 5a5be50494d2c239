package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "api-service base url")
		evtType = flag.String("type", getenv("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		profile = flag.String("profile-id", getenv("PROFILE_ID", ""), "profile_id metadata")
		tier    = flag.String("tier", getenv("TIER", "premium"), "tier metadata (basic|premium)")
		secret  = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*profile) == "" {
		fatal("PROFILE_ID is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())

	payload, err := buildEventJSON(eventID, *evtType, now, *profile, *tier)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("event=%s status=%d body=%s\n", eventID, resp.StatusCode, strings.TrimSpace(string(out)))
}

func buildEventJSON(eventID, eventType string, t time.Time, profileID, tier string) ([]byte, error) {
	metadata := map[string]any{"profile_id": profileID, "tier": tier}
	var object map[string]any
	switch eventType {
	case "checkout.session.completed":
		object = map[string]any{
			"id":       "cs_test_123",
			"object":   "checkout.session",
			"metadata": metadata,
		}
	case "customer.subscription.updated", "customer.subscription.created", "customer.subscription.deleted":
		status := "active"
		if eventType == "customer.subscription.deleted" {
			status = "canceled"
		}
		object = map[string]any{
			"id":       "sub_test_123",
			"object":   "subscription",
			"status":   status,
			"metadata": metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

