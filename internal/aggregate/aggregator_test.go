package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/crudecast/crudecast/internal/core"
)

var testDay = core.Date{Year: 2025, Month: time.March, Day: 1}

func TestAggregate_SingleCountry(t *testing.T) {
	universe := core.NewUniverse([]core.CountryCode{"RUS", "SAU"})
	events := []core.EventRecord{
		{SourceID: "a.com", Countries: []core.CountryCode{"RUS"}, Tone: -2.0, Themes: []string{"ENV_OIL"}},
		{SourceID: "b.com", Countries: []core.CountryCode{"RUS"}, Tone: 4.0, Themes: []string{"WAR_CONFLICT"}},
		{SourceID: "a.com", Countries: []core.CountryCode{"RUS"}, Tone: 1.0},
	}

	out := Aggregate(events, testDay, universe)
	if len(out) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(out))
	}

	agg := out[0]
	if agg.Country != "RUS" || agg.Date != testDay {
		t.Errorf("key = %s/%s", agg.Country, agg.Date)
	}
	if agg.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", agg.EventCount)
	}
	if agg.AvgTone != 1.0 {
		t.Errorf("AvgTone = %f, want 1.0", agg.AvgTone)
	}
	// Sample deviation of {-2, 4, 1} is 3.
	if math.Abs(agg.ToneStd-3.0) > 1e-12 {
		t.Errorf("ToneStd = %f, want 3.0", agg.ToneStd)
	}
	if agg.UniqueSources != 2 {
		t.Errorf("UniqueSources = %d, want 2 (a.com deduplicated)", agg.UniqueSources)
	}
	if agg.ThemeCounts[core.ThemeEnergy] != 1 || agg.ThemeCounts[core.ThemeConflict] != 1 {
		t.Errorf("ThemeCounts = %v", agg.ThemeCounts)
	}
}

func TestAggregate_SingleEventZeroStd(t *testing.T) {
	universe := core.NewUniverse([]core.CountryCode{"IRN"})
	events := []core.EventRecord{
		{SourceID: "x", Countries: []core.CountryCode{"IRN"}, Tone: -5.5},
	}

	out := Aggregate(events, testDay, universe)
	if len(out) != 1 {
		t.Fatalf("got %d aggregates", len(out))
	}
	if out[0].ToneStd != 0 {
		t.Errorf("ToneStd = %f, want 0 for a single observation", out[0].ToneStd)
	}
}

func TestAggregate_MultiCountryEvent(t *testing.T) {
	universe := core.NewUniverse([]core.CountryCode{"RUS", "SAU"})
	events := []core.EventRecord{
		{SourceID: "x", Countries: []core.CountryCode{"RUS", "SAU", "XYZ"}, Tone: 2.0},
	}

	out := Aggregate(events, testDay, universe)
	if len(out) != 2 {
		t.Fatalf("got %d aggregates, want the event counted for both universe countries", len(out))
	}
	// Output is sorted by country.
	if out[0].Country != "RUS" || out[1].Country != "SAU" {
		t.Errorf("order = %s, %s", out[0].Country, out[1].Country)
	}
}

func TestAggregate_ThemeCountedOncePerEvent(t *testing.T) {
	universe := core.NewUniverse([]core.CountryCode{"USA"})
	events := []core.EventRecord{
		{SourceID: "x", Countries: []core.CountryCode{"USA"}, Themes: []string{"ENV_OIL", "ECON_ENERGY_PRICES", "CRUDE_PETROLEUM"}},
	}

	out := Aggregate(events, testDay, universe)
	if out[0].ThemeCounts[core.ThemeEnergy] != 1 {
		t.Errorf("energy count = %d, want 1 per event regardless of token count", out[0].ThemeCounts[core.ThemeEnergy])
	}
}

func TestAggregate_Empty(t *testing.T) {
	universe := core.NewUniverse([]core.CountryCode{"USA"})
	out := Aggregate(nil, testDay, universe)
	if len(out) != 0 {
		t.Errorf("got %d aggregates for no events", len(out))
	}
}
