package feature

import (
	"fmt"
	"sync"

	"github.com/crudecast/crudecast/internal/core"
)

// Derivation parameters. These are pinned by the trained model and must not
// drift: metadata.feature_names of a freshly trained run enumerates exactly
// the columns Names produces, in the same order.
var (
	instruments = []string{"wti", "brent"}
	priceLags   = []int{1, 2, 3, 5, 7, 14, 30}
	newsLags    = []int{1, 2, 3, 5, 7}
	maWindows   = []int{5, 10, 20, 30}
	newsBases   = []string{"avg_tone", "tone_std", "event_count"}
)

// RSIPeriod is the Wilder smoothing span.
const RSIPeriod = 14

// ZScoreWindow is the trailing window for theme z-scores.
const ZScoreWindow = 30

// MaxLookback bounds how much per-country history any derived value depends
// on; countries with fewer rows are flagged as cold starts.
const MaxLookback = 30

// SpikeThreshold marks a themed z-score as a spike.
const SpikeThreshold = 2.0

var (
	namesOnce sync.Once
	names     []string
)

// Names returns the canonical ordered feature-name vector.
func Names() []string {
	namesOnce.Do(func() {
		for _, inst := range instruments {
			names = append(names,
				inst+"_price",
				inst+"_delta",
				inst+"_return",
			)
			for _, k := range priceLags {
				names = append(names, fmt.Sprintf("%s_price_lag%d", inst, k))
			}
			for _, k := range priceLags {
				names = append(names, fmt.Sprintf("%s_return_lag%d", inst, k))
			}
			for _, w := range maWindows {
				names = append(names,
					fmt.Sprintf("%s_return_ma%d", inst, w),
					fmt.Sprintf("%s_return_std%d", inst, w),
				)
			}
			names = append(names,
				inst+"_momentum_5_20",
				inst+"_momentum_10_30",
				inst+"_rsi",
			)
		}

		names = append(names, "avg_tone", "tone_std", "event_count", "unique_sources")
		for _, theme := range core.AllThemes {
			names = append(names, "theme_"+string(theme))
		}

		for _, base := range newsBases {
			for _, k := range newsLags {
				names = append(names, fmt.Sprintf("%s_lag%d", base, k))
			}
			names = append(names, base+"_change", base+"_pct_change")
		}

		for _, theme := range core.AllThemes {
			prefix := "theme_" + string(theme)
			names = append(names,
				prefix+"_change",
				prefix+"_pct_change",
				prefix+"_zscore",
				prefix+"_spike",
			)
		}
	})

	out := make([]string, len(names))
	copy(out, names)
	return out
}
