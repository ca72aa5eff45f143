package feature

import (
	"fmt"
	"math"

	"github.com/crudecast/crudecast/internal/core"
)

// epsilon guards percentage-change denominators.
const epsilon = 1e-9

// Result is the output of one engineering pass.
type Result struct {
	Rows []core.FeatureRow

	// Clamped counts non-finite values replaced by zero.
	Clamped int

	// ColdStart lists countries with fewer rows than MaxLookback. Their
	// feature values are still zero-filled per policy; the flag only
	// surfaces the condition.
	ColdStart []core.CountryCode
}

// Engineer derives the canonical feature vector for every aligned row. The
// input must be sorted lexicographically by (country, date); each row's
// features are a pure function of its country's rows at earlier or equal
// dates.
func Engineer(aligned []core.AlignedRow) Result {
	featureNames := Names()
	var res Result

	for start := 0; start < len(aligned); {
		end := start
		for end < len(aligned) && aligned[end].Country == aligned[start].Country {
			end++
		}
		group := aligned[start:end]
		start = end

		if len(group) < MaxLookback {
			res.ColdStart = append(res.ColdStart, group[0].Country)
		}

		cols := computeColumns(group)
		for t, row := range group {
			values := make([]float64, len(featureNames))
			for i, name := range featureNames {
				v := cols[name][t]
				if math.IsInf(v, 0) {
					res.Clamped++
					v = 0
				} else if math.IsNaN(v) {
					// Insufficient history reads as zero.
					v = 0
				}
				values[i] = v
			}
			res.Rows = append(res.Rows, core.FeatureRow{
				Country: row.Country,
				Date:    row.Date,
				Values:  values,
			})
		}
	}

	return res
}

// computeColumns derives every feature column for one country's rows,
// ordered by date.
func computeColumns(group []core.AlignedRow) map[string][]float64 {
	n := len(group)
	cols := make(map[string][]float64, 128)

	colOf := func(get func(core.AlignedRow) float64) []float64 {
		out := make([]float64, n)
		for i, row := range group {
			out[i] = get(row)
		}
		return out
	}

	prices := map[string][]float64{
		"wti":   colOf(func(r core.AlignedRow) float64 { return r.WTIPrice }),
		"brent": colOf(func(r core.AlignedRow) float64 { return r.BrentPrice }),
	}

	for _, inst := range instruments {
		price := prices[inst]
		delta := diff(price)
		ret := pctReturn(price)

		cols[inst+"_price"] = price
		cols[inst+"_delta"] = delta
		cols[inst+"_return"] = ret

		for _, k := range priceLags {
			cols[fmt.Sprintf("%s_price_lag%d", inst, k)] = shift(price, k)
			cols[fmt.Sprintf("%s_return_lag%d", inst, k)] = shift(ret, k)
		}

		for _, w := range maWindows {
			cols[fmt.Sprintf("%s_return_ma%d", inst, w)] = rollingMean(ret, w)
			cols[fmt.Sprintf("%s_return_std%d", inst, w)] = rollingStd(ret, w)
		}

		cols[inst+"_momentum_5_20"] = sub(cols[inst+"_return_ma5"], cols[inst+"_return_ma20"])
		cols[inst+"_momentum_10_30"] = sub(cols[inst+"_return_ma10"], cols[inst+"_return_ma30"])
		cols[inst+"_rsi"] = wilderRSI(price, RSIPeriod)
	}

	newsSeries := map[string][]float64{
		"avg_tone":    colOf(func(r core.AlignedRow) float64 { return r.AvgTone }),
		"tone_std":    colOf(func(r core.AlignedRow) float64 { return r.ToneStd }),
		"event_count": colOf(func(r core.AlignedRow) float64 { return float64(r.EventCount) }),
	}
	cols["unique_sources"] = colOf(func(r core.AlignedRow) float64 { return float64(r.UniqueSources) })

	for _, base := range newsBases {
		series := newsSeries[base]
		cols[base] = series
		for _, k := range newsLags {
			cols[fmt.Sprintf("%s_lag%d", base, k)] = shift(series, k)
		}
		cols[base+"_change"] = diff(series)
		cols[base+"_pct_change"] = pctChange(series)
	}

	for _, theme := range core.AllThemes {
		prefix := "theme_" + string(theme)
		series := colOf(func(r core.AlignedRow) float64 { return float64(r.ThemeCounts[theme]) })
		zscore := rollingZScore(series, ZScoreWindow)

		cols[prefix] = series
		cols[prefix+"_change"] = diff(series)
		cols[prefix+"_pct_change"] = pctChange(series)
		cols[prefix+"_zscore"] = zscore

		spike := make([]float64, n)
		for i, z := range zscore {
			if z > SpikeThreshold {
				spike[i] = 1
			}
		}
		cols[prefix+"_spike"] = spike
	}

	return cols
}

// pctChange is the first difference relative to the previous magnitude, with
// an epsilon floor on the denominator.
func pctChange(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i == 0 {
			out[i] = nan
			continue
		}
		denom := math.Abs(x[i-1])
		if denom < epsilon {
			denom = epsilon
		}
		out[i] = (x[i] - x[i-1]) / denom
	}
	return out
}
