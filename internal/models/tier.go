package models

// Tier identifies a subscription plan.
type Tier string

const (
	TierStarter Tier = "starter"
	TierPlus    Tier = "plus"
	TierGrowth  Tier = "growth"
)

// TierLimits describes what a plan allows.
type TierLimits struct {
	BatchProcessing  bool
	MaxBatchFiles    int
	PagesPerPeriod   int
	UploadsPerMinute int
}

var tierLimits = map[Tier]TierLimits{
	TierStarter: {BatchProcessing: false, MaxBatchFiles: 0, PagesPerPeriod: 100, UploadsPerMinute: 5},
	TierPlus:    {BatchProcessing: true, MaxBatchFiles: 20, PagesPerPeriod: 1000, UploadsPerMinute: 20},
	TierGrowth:  {BatchProcessing: true, MaxBatchFiles: 50, PagesPerPeriod: 5000, UploadsPerMinute: 60},
}

// Limits returns the plan limits, falling back to starter for unknown tiers.
func (t Tier) Limits() TierLimits {
	if limits, ok := tierLimits[t]; ok {
		return limits
	}
	return tierLimits[TierStarter]
}
