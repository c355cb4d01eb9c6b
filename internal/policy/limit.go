package policy

// limitTier caps the credit line for probabilities strictly below Below.
type limitTier struct {
	Below float64
	Limit int
}

// The ladder is its own policy axis; it does not follow Settings.Threshold.
var limitLadder = []limitTier{
	{Below: 0.02, Limit: 5000},
	{Below: 0.05, Limit: 3000},
	{Below: 0.10, Limit: 1000},
	{Below: 0.20, Limit: 500},
}

// RecommendLimit maps a default probability to a credit limit.
func RecommendLimit(p float64) int {
	for _, t := range limitLadder {
		if p < t.Below {
			return t.Limit
		}
	}
	return 0
}

// LimitTiers returns the ladder's upper limits, highest first.
func LimitTiers() []int {
	out := make([]int, 0, len(limitLadder)+1)
	for _, t := range limitLadder {
		out = append(out, t.Limit)
	}
	return append(out, 0)
}
