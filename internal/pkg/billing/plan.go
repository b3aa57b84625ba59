package billing

import (
	"strings"

	"github.com/supuni9622/ModelSnap/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	return string(entitlements.Normalize(plan))
}

func planRank(plan string) int {
	return entitlements.Rank(entitlements.Normalize(plan))
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due", "on_trial":
		return true
	default:
		return false
	}
}
