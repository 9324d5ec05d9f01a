package tiers

import "strings"

type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierPremium       Tier = "premium"
)

// Limits are the sliding-window request ceilings for a tier. A request is
// rejected once the window count reaches the limit (boundary inclusive).
type Limits struct {
	Hourly int
	Daily  int
}

// LimitsFor returns the quota ceilings for a tier.
func LimitsFor(tier Tier) Limits {
	switch tier {
	case TierPremium:
		return Limits{Hourly: 100, Daily: 500}
	case TierAuthenticated:
		return Limits{Hourly: 30, Daily: 100}
	default:
		return Limits{Hourly: 3, Daily: 3}
	}
}

// FromPlan derives the quota tier from the server-side session state and the
// stored user plan. The tier is never taken from client input; a spoofed
// plan value in a request body cannot raise the caller's limits.
func FromPlan(loggedIn bool, plan string) Tier {
	if !loggedIn {
		return TierAnonymous
	}
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "premium", "premium_max":
		return TierPremium
	default:
		return TierAuthenticated
	}
}

func tierRank(t Tier) int {
	switch t {
	case TierPremium:
		return 2
	case TierAuthenticated:
		return 1
	default:
		return 0
	}
}

// Best returns the higher-ranked of two tiers.
func Best(a, b Tier) Tier {
	if tierRank(a) >= tierRank(b) {
		return a
	}
	return b
}
