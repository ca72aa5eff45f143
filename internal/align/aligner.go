package align

import (
	"sort"

	"github.com/crudecast/crudecast/internal/core"
)

// GridDates returns the contiguous trailing window of calendar days ending at
// target, oldest first.
func GridDates(target core.Date, lookbackDays int) []core.Date {
	dates := make([]core.Date, 0, lookbackDays+1)
	for i := lookbackDays; i >= 0; i-- {
		dates = append(dates, target.AddDays(-i))
	}
	return dates
}

// Align merges aggregated events and prices onto the canonical country-date
// grid. Event statistics are zero-filled where absent: a silent day is a zero
// day, not a stale one. Prices are forward-filled from the nearest preceding
// trading day inside the window; dates with no prior price are dropped from
// the whole grid.
//
// The output is sorted lexicographically by (country, date). Downstream lag
// computation depends on this order.
func Align(aggregated []core.AggregatedEvent, prices []core.PricePoint, universe *core.Universe, dates []core.Date) []core.AlignedRow {
	priceByDate := make(map[core.Date]core.PricePoint, len(prices))
	for _, p := range prices {
		priceByDate[p.Date] = p
	}

	type key struct {
		country core.CountryCode
		date    core.Date
	}
	eventByKey := make(map[key]core.AggregatedEvent, len(aggregated))
	for _, agg := range aggregated {
		eventByKey[key{agg.Country, agg.Date}] = agg
	}

	// Resolve the price for every grid date once; a date with no prior
	// trading day is excluded for every country.
	type dayPrice struct {
		date  core.Date
		price core.PricePoint
	}
	filled := make([]dayPrice, 0, len(dates))
	var last core.PricePoint
	var haveLast bool
	for _, d := range dates {
		if p, ok := priceByDate[d]; ok {
			last = p
			haveLast = true
		}
		if !haveLast {
			continue
		}
		filled = append(filled, dayPrice{date: d, price: last})
	}

	rows := make([]core.AlignedRow, 0, universe.Len()*len(filled))
	for _, country := range universe.Codes() {
		for _, dp := range filled {
			row := core.AlignedRow{
				Country:    country,
				Date:       dp.date,
				WTIPrice:   dp.price.WTIClose,
				BrentPrice: dp.price.BrentClose,
			}
			if agg, ok := eventByKey[key{country, dp.date}]; ok {
				row.EventCount = agg.EventCount
				row.AvgTone = agg.AvgTone
				row.ToneStd = agg.ToneStd
				row.UniqueSources = agg.UniqueSources
				row.ThemeCounts = agg.ThemeCounts
			}
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Country != rows[j].Country {
			return rows[i].Country < rows[j].Country
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	return rows
}
