package entitlements

import (
	"errors"
	"testing"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

func TestCanUse_Unlimited(t *testing.T) {
	for _, used := range []int{0, 1, 5, 1000, 1 << 30} {
		if !CanUse(used, Unlimited) {
			t.Fatalf("unlimited plan should allow used=%d", used)
		}
	}
}

func TestCanUse_Bounded(t *testing.T) {
	for limit := 0; limit <= 6; limit++ {
		for used := 0; used <= 8; used++ {
			want := used < limit
			if got := CanUse(used, limit); got != want {
				t.Fatalf("CanUse(%d, %d) = %v, want %v", used, limit, got, want)
			}
		}
	}
}

func TestCheckConsume(t *testing.T) {
	if err := CheckConsume(ActionAIPrediction, 4, 1, 5); err != nil {
		t.Fatalf("expected 4+1<=5 to pass, got %v", err)
	}
	err := CheckConsume(ActionAIPrediction, 4, 2, 5)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.Used != 4 || le.Limit != 5 {
		t.Fatalf("unexpected limit error %#v", err)
	}
	if err := CheckConsume(ActionAIPrediction, 1000, 1, Unlimited); err != nil {
		t.Fatalf("unlimited should pass, got %v", err)
	}
	if err := CheckConsume(ActionAIPrediction, 0, 0, 5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestLimitFor(t *testing.T) {
	free := model.Profile{Tier: model.TierFree}
	if got := LimitFor(free, ActionAIPrediction); got != 5 {
		t.Fatalf("free AI limit = %d", got)
	}
	if got := LimitFor(free, ActionConsultation); got != 2 {
		t.Fatalf("free consultation limit = %d", got)
	}
	if got := LimitFor(model.Profile{Tier: model.TierPremium}, ActionAIPrediction); got != Unlimited {
		t.Fatalf("premium AI limit = %d", got)
	}
	override := 12
	free.AILimitOverride = &override
	if got := LimitFor(free, ActionAIPrediction); got != 12 {
		t.Fatalf("override not applied, got %d", got)
	}
	if got := LimitFor(model.Profile{Tier: "platinum"}, ActionAIPrediction); got != 5 {
		t.Fatalf("unknown tier should fall back to free, got %d", got)
	}
}
