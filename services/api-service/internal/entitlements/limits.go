package entitlements

import "github.com/agribeta/agribeta/services/api-service/internal/model"

// Unlimited disables the counter check for an action.
const Unlimited = -1

type Action string

const (
	ActionAIPrediction Action = "ai_prediction"
	ActionConsultation Action = "consultation"
)

var Actions = []Action{ActionAIPrediction, ActionConsultation}

func (a Action) Valid() bool {
	return a == ActionAIPrediction || a == ActionConsultation
}

// Plan is the catalog entry for a subscription tier.
type Plan struct {
	Tier   model.Tier     `json:"tier"`
	Name   string         `json:"name"`
	Limits map[Action]int `json:"limits"`
}

var plans = map[model.Tier]Plan{
	model.TierFree: {
		Tier: model.TierFree,
		Name: "Free",
		Limits: map[Action]int{
			ActionAIPrediction: 5,
			ActionConsultation: 2,
		},
	},
	model.TierBasic: {
		Tier: model.TierBasic,
		Name: "Basic",
		Limits: map[Action]int{
			ActionAIPrediction: 50,
			ActionConsultation: 10,
		},
	},
	model.TierPremium: {
		Tier: model.TierPremium,
		Name: "Premium",
		Limits: map[Action]int{
			ActionAIPrediction: Unlimited,
			ActionConsultation: Unlimited,
		},
	},
}

// PlanForTier falls back to the free plan for unknown tiers.
func PlanForTier(tier model.Tier) Plan {
	if p, ok := plans[tier]; ok {
		return p
	}
	return plans[model.TierFree]
}

func Plans() []Plan {
	return []Plan{plans[model.TierFree], plans[model.TierBasic], plans[model.TierPremium]}
}

// LimitFor resolves the effective limit of action for p. An admin override of
// the AI prediction limit wins over the tier.
func LimitFor(p model.Profile, action Action) int {
	if action == ActionAIPrediction && p.AILimitOverride != nil {
		return *p.AILimitOverride
	}
	limit, ok := PlanForTier(p.Tier).Limits[action]
	if !ok {
		return 0
	}
	return limit
}
