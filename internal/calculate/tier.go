package calculate

import "github.com/sshoecraft/mmprocess/internal/config"

// SelectTier picks the tier with the smallest max_pixels threshold able to
// hold the given input pixel count. False when no tier qualifies; ties on
// threshold resolve by name for determinism.
func SelectTier(tiers map[string]config.Tier, pixels int64) (string, config.Tier, bool) {
	var (
		bestName string
		best     config.Tier
		found    bool
	)
	for name, tier := range tiers {
		if tier.MaxPixels < pixels {
			continue
		}
		if !found || tier.MaxPixels < best.MaxPixels || (tier.MaxPixels == best.MaxPixels && name < bestName) {
			bestName, best, found = name, tier, true
		}
	}
	return bestName, best, found
}
