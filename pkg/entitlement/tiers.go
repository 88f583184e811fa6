package entitlement

import (
	"slices"
	"sort"
)

// Tier is the coarse entitlement level gating feature availability.
type Tier string

const (
	TierCore Tier = "core"
	TierPro  Tier = "pro"
)

// Capability keys gate named units of functionality. Core capabilities are
// always available; pro capabilities are strictly additive.
const (
	// Core capabilities
	CapProjects      = "projects"
	CapStatusMonitor = "status_monitor"
	CapManualSync    = "manual_sync"

	// Pro capabilities (everything in core, plus:)
	CapMultiWorkspace    = "multi_workspace"
	CapUnlimitedProjects = "unlimited_projects"
	CapAdvancedReporting = "advanced_reporting"
	CapPrioritySupport   = "priority_support"
)

// TierCapabilities maps each tier to its included capabilities. The same
// table is used at issuance and as the verify-time fallback for legacy
// tokens without an explicit capability list; the two must never drift.
var TierCapabilities = map[Tier][]string{
	TierCore: {
		CapManualSync,
		CapProjects,
		CapStatusMonitor,
	},
	TierPro: {
		CapAdvancedReporting,
		CapManualSync,
		CapMultiWorkspace,
		CapPrioritySupport,
		CapProjects,
		CapStatusMonitor,
		CapUnlimitedProjects,
	},
}

// PlanTiers maps purchase plan ids to tiers. Plan ids not listed here map
// to core; unknown plans never escalate.
var PlanTiers = map[string]Tier{
	"solo_monthly": TierPro,
	"solo_yearly":  TierPro,
	"team_monthly": TierPro,
	"team_yearly":  TierPro,
	"pro_trial":    TierPro,
}

// PlanTier returns the tier a plan id entitles, defaulting to core.
func PlanTier(planID string) Tier {
	if tier, ok := PlanTiers[planID]; ok {
		return tier
	}
	return TierCore
}

// CapabilitiesForTier returns a sorted copy of the tier's capability set.
// Unknown tiers get the core set.
func CapabilitiesForTier(tier Tier) []string {
	caps, ok := TierCapabilities[tier]
	if !ok {
		caps = TierCapabilities[TierCore]
	}
	out := slices.Clone(caps)
	sort.Strings(out)
	return out
}

// TierHasCapability checks whether a tier includes a capability.
func TierHasCapability(tier Tier, capability string) bool {
	return slices.Contains(TierCapabilities[tier], capability)
}

func validTier(tier Tier) bool {
	return tier == TierCore || tier == TierPro
}
