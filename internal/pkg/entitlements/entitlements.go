package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPremiumMax Plan = "premium_max"
)

// RenderCreditCost returns how many credits one generation attempt costs on a
// given plan. Every plan currently pays one credit per attempt; the plan hook
// exists so promotional tiers can discount it without touching the ledger.
func RenderCreditCost(plan Plan) int64 {
	switch plan {
	case PlanPremium, PlanPremiumMax:
		return 1
	default:
		return 1
	}
}

// IncludedMonthlyCredits returns the free credits granted when a subscription
// for the plan becomes active, keyed per billing event so renewals re-grant.
func IncludedMonthlyCredits(plan Plan) int64 {
	switch plan {
	case PlanPremiumMax:
		return 200
	case PlanPremium:
		return 50
	default:
		return 0
	}
}

// CanUseLicensedModels reports whether the plan may render onto licensed human
// models rather than only the user's own AI avatars.
func CanUseLicensedModels(plan Plan) bool {
	switch plan {
	case PlanPremium, PlanPremiumMax:
		return true
	default:
		return false
	}
}

// Normalize maps arbitrary stored plan strings onto a known plan.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPremium):
		return PlanPremium
	case string(PlanPremiumMax):
		return PlanPremiumMax
	default:
		return PlanFree
	}
}

// Rank orders plans so reconciliation can pick the best entitling subscription.
func Rank(plan Plan) int {
	switch plan {
	case PlanPremiumMax:
		return 2
	case PlanPremium:
		return 1
	default:
		return 0
	}
}
