package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "premium", want: PlanPremium},
		{in: "premium_max", want: PlanPremiumMax},
		{in: " Premium ", want: PlanPremium},
		{in: "PREMIUM_MAX", want: PlanPremiumMax},
		{in: "", want: PlanFree},
		{in: "enterprise", want: PlanFree},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "plan %q", tt.in)
	}
}

func TestCanUseLicensedModels(t *testing.T) {
	assert.False(t, CanUseLicensedModels(PlanFree))
	assert.True(t, CanUseLicensedModels(PlanPremium))
	assert.True(t, CanUseLicensedModels(PlanPremiumMax))
}

func TestIncludedMonthlyCredits(t *testing.T) {
	assert.Equal(t, int64(0), IncludedMonthlyCredits(PlanFree))
	assert.Equal(t, int64(50), IncludedMonthlyCredits(PlanPremium))
	assert.Equal(t, int64(200), IncludedMonthlyCredits(PlanPremiumMax))
}

func TestRenderCreditCostIsPositiveOnEveryPlan(t *testing.T) {
	for _, plan := range []Plan{PlanFree, PlanPremium, PlanPremiumMax} {
		assert.Equal(t, int64(1), RenderCreditCost(plan), "plan %s", plan)
	}
}

func TestRankOrdersPlans(t *testing.T) {
	assert.Greater(t, Rank(PlanPremiumMax), Rank(PlanPremium))
	assert.Greater(t, Rank(PlanPremium), Rank(PlanFree))
}
