package feature

import (
	"math"
	"testing"
	"time"

	"github.com/crudecast/crudecast/internal/core"
)

func date(day int) core.Date {
	t := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day-1)
	return core.DateOf(t)
}

// alignedSeries builds n days of aligned rows for one country with linearly
// rising prices.
func alignedSeries(country core.CountryCode, n int) []core.AlignedRow {
	rows := make([]core.AlignedRow, n)
	for i := range rows {
		rows[i] = core.AlignedRow{
			Country:    country,
			Date:       date(i + 1),
			WTIPrice:   70 + float64(i),
			BrentPrice: 74 + float64(i),
			EventCount: i + 1,
			AvgTone:    -1,
		}
	}
	return rows
}

func TestNames_StableAndComplete(t *testing.T) {
	names := Names()
	if len(names) != 111 {
		t.Fatalf("got %d names, want 111", len(names))
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate feature name %q", name)
		}
		seen[name] = struct{}{}
	}

	again := Names()
	for i := range names {
		if names[i] != again[i] {
			t.Fatalf("name order not stable at %d", i)
		}
	}

	for _, want := range []string{
		"wti_price", "brent_rsi", "wti_momentum_5_20", "avg_tone_lag7",
		"theme_energy_zscore", "theme_policy_spike", "event_count_pct_change",
	} {
		if _, ok := seen[want]; !ok {
			t.Errorf("missing feature %q", want)
		}
	}
}

func TestEngineer_VectorShape(t *testing.T) {
	res := Engineer(alignedSeries("RUS", 40))
	if len(res.Rows) != 40 {
		t.Fatalf("got %d rows, want 40", len(res.Rows))
	}
	names := Names()
	for _, row := range res.Rows {
		if len(row.Values) != len(names) {
			t.Fatalf("row %s has %d values, want %d", row.Date, len(row.Values), len(names))
		}
		for i, v := range row.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value for %s at %s", names[i], row.Date)
			}
		}
	}
	if len(res.ColdStart) != 0 {
		t.Errorf("ColdStart = %v for a 40-row country", res.ColdStart)
	}
}

func TestEngineer_LagsAndDeltas(t *testing.T) {
	res := Engineer(alignedSeries("RUS", 40))
	names := Names()
	idx := make(map[string]int, len(names))
	for i, name := range names {
		idx[name] = i
	}

	last := res.Rows[len(res.Rows)-1]
	if got := last.Values[idx["wti_price"]]; got != 109 {
		t.Errorf("wti_price = %f, want 109", got)
	}
	if got := last.Values[idx["wti_delta"]]; got != 1 {
		t.Errorf("wti_delta = %f, want 1", got)
	}
	if got := last.Values[idx["wti_price_lag7"]]; got != 102 {
		t.Errorf("wti_price_lag7 = %f, want 102", got)
	}
	if got := last.Values[idx["event_count_lag1"]]; got != 39 {
		t.Errorf("event_count_lag1 = %f, want 39", got)
	}
	if got := last.Values[idx["event_count_change"]]; got != 1 {
		t.Errorf("event_count_change = %f, want 1", got)
	}
}

func TestEngineer_InsufficientHistoryIsZero(t *testing.T) {
	res := Engineer(alignedSeries("RUS", 40))
	names := Names()
	idx := make(map[string]int, len(names))
	for i, name := range names {
		idx[name] = i
	}

	first := res.Rows[0]
	if got := first.Values[idx["wti_delta"]]; got != 0 {
		t.Errorf("first-row wti_delta = %f, want 0", got)
	}
	if got := first.Values[idx["wti_rsi"]]; got != 0 {
		t.Errorf("first-row wti_rsi = %f, want 0 before the seed", got)
	}
	if got := res.Rows[RSIPeriod].Values[idx["wti_rsi"]]; got != 100 {
		t.Errorf("seeded wti_rsi = %f, want 100 for a monotone series", got)
	}
}

func TestEngineer_ColdStartFlag(t *testing.T) {
	rows := append(alignedSeries("RUS", 40), alignedSeries("SAU", 5)...)
	res := Engineer(rows)
	if len(res.ColdStart) != 1 || res.ColdStart[0] != "SAU" {
		t.Errorf("ColdStart = %v, want [SAU]", res.ColdStart)
	}
	if len(res.Rows) != 45 {
		t.Errorf("got %d rows, want 45", len(res.Rows))
	}
}

func TestEngineer_Deterministic(t *testing.T) {
	rows := append(alignedSeries("RUS", 35), alignedSeries("SAU", 35)...)
	a := Engineer(rows)
	b := Engineer(rows)

	if len(a.Rows) != len(b.Rows) {
		t.Fatalf("row counts differ: %d vs %d", len(a.Rows), len(b.Rows))
	}
	for i := range a.Rows {
		for j := range a.Rows[i].Values {
			if a.Rows[i].Values[j] != b.Rows[i].Values[j] {
				t.Fatalf("value %d of row %d differs between runs", j, i)
			}
		}
	}
}

func TestEngineer_CountriesIndependent(t *testing.T) {
	rus := alignedSeries("RUS", 35)
	solo := Engineer(rus)
	joint := Engineer(append(alignedSeries("IRN", 35), rus...))

	// IRN sorts before RUS, so the RUS block is the second half.
	for i := range solo.Rows {
		jr := joint.Rows[35+i]
		if jr.Country != "RUS" {
			t.Fatalf("row %d is %s, want RUS", 35+i, jr.Country)
		}
		for j := range solo.Rows[i].Values {
			if solo.Rows[i].Values[j] != jr.Values[j] {
				t.Fatalf("RUS features changed when another country was added (row %d, value %d)", i, j)
			}
		}
	}
}

func TestPctChange_EpsilonFloor(t *testing.T) {
	out := pctChange([]float64{0, 5})
	if math.IsInf(out[1], 0) || math.IsNaN(out[1]) {
		t.Fatalf("pct change over a zero base must stay finite, got %f", out[1])
	}
	if out[1] != 5/epsilon {
		t.Errorf("got %g, want %g", out[1], 5/epsilon)
	}
}
