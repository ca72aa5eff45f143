package aggregate

import (
	"math"
	"sort"

	"github.com/crudecast/crudecast/internal/core"
)

// accumulator collects one country-day's statistics before finalization.
type accumulator struct {
	tones   []float64
	sources map[string]struct{}
	themes  map[core.Theme]int
}

// Aggregate groups one day of event records by country and computes mention
// count, tone mean and sample deviation, source diversity and themed counts.
// Records touching countries outside the universe are dropped here; columns
// outside the closed schema never pass this boundary.
func Aggregate(events []core.EventRecord, date core.Date, universe *core.Universe) []core.AggregatedEvent {
	acc := make(map[core.CountryCode]*accumulator)

	for _, ev := range events {
		categories := categorizeAll(ev.Themes)

		for _, country := range ev.Countries {
			if !universe.Contains(country) {
				continue
			}

			a, ok := acc[country]
			if !ok {
				a = &accumulator{
					sources: make(map[string]struct{}),
					themes:  make(map[core.Theme]int),
				}
				acc[country] = a
			}

			a.tones = append(a.tones, ev.Tone)
			if ev.SourceID != "" {
				a.sources[ev.SourceID] = struct{}{}
			}
			for theme := range categories {
				a.themes[theme]++
			}
		}
	}

	out := make([]core.AggregatedEvent, 0, len(acc))
	for country, a := range acc {
		out = append(out, core.AggregatedEvent{
			Country:       country,
			Date:          date,
			EventCount:    len(a.tones),
			AvgTone:       mean(a.tones),
			ToneStd:       sampleStd(a.tones),
			UniqueSources: len(a.sources),
			ThemeCounts:   a.themes,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Country < out[j].Country
	})

	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 deviation; zero when fewer than two observations.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
