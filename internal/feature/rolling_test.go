package feature

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestShift(t *testing.T) {
	out := shift([]float64{1, 2, 3, 4}, 2)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("head not NaN")
	}
	if out[2] != 1 || out[3] != 2 {
		t.Errorf("tail = %v", out[2:])
	}
}

func TestDiffAndReturn(t *testing.T) {
	d := diff([]float64{10, 12, 9})
	if !math.IsNaN(d[0]) || d[1] != 2 || d[2] != -3 {
		t.Errorf("diff = %v", d)
	}

	r := pctReturn([]float64{10, 12, 9})
	if !almostEqual(r[1], 0.2) || !almostEqual(r[2], -0.25) {
		t.Errorf("return = %v", r)
	}
}

func TestRollingMean_MinPeriodsOne(t *testing.T) {
	out := rollingMean([]float64{2, 4, 6, 8}, 3)
	want := []float64{2, 3, 4, 6}
	for i := range want {
		if !almostEqual(out[i], want[i]) {
			t.Errorf("mean[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestRollingMean_SkipsNaN(t *testing.T) {
	out := rollingMean([]float64{nan, 4, 6}, 3)
	if !math.IsNaN(out[0]) {
		t.Error("all-NaN window should stay NaN")
	}
	if !almostEqual(out[1], 4) || !almostEqual(out[2], 5) {
		t.Errorf("got %v", out[1:])
	}
}

func TestRollingStd(t *testing.T) {
	out := rollingStd([]float64{2, 4, 6}, 3)
	if !math.IsNaN(out[0]) {
		t.Error("single observation should be NaN")
	}
	// Sample deviation of {2, 4} and {2, 4, 6}.
	if !almostEqual(out[1], math.Sqrt(2)) {
		t.Errorf("std[1] = %f", out[1])
	}
	if !almostEqual(out[2], 2) {
		t.Errorf("std[2] = %f", out[2])
	}
}

func TestRollingZScore_DegenerateWindow(t *testing.T) {
	out := rollingZScore([]float64{5, 5, 5, 5}, 3)
	for i, z := range out {
		if z != 0 {
			t.Errorf("zscore[%d] = %f, want 0 for constant series", i, z)
		}
	}
}

func TestRollingZScore(t *testing.T) {
	x := []float64{1, 2, 3, 10}
	out := rollingZScore(x, 3)
	// Window {2, 3, 10}: mean 5, std ~4.3589.
	want := (10.0 - 5.0) / math.Sqrt(19)
	if !almostEqual(out[3], want) {
		t.Errorf("zscore[3] = %f, want %f", out[3], want)
	}
}

func TestWilderRSI_AllGains(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 50 + float64(i)
	}
	out := wilderRSI(prices, RSIPeriod)

	for i := 0; i < RSIPeriod; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("rsi[%d] = %f before the seed completes", i, out[i])
		}
	}
	for i := RSIPeriod; i < len(out); i++ {
		if out[i] != 100 {
			t.Errorf("rsi[%d] = %f, want saturation at 100", i, out[i])
		}
	}
}

func TestWilderRSI_Recurrence(t *testing.T) {
	// 14 unit gains to seed, then one loss of 7.
	prices := make([]float64, 16)
	for i := 0; i < 15; i++ {
		prices[i] = 50 + float64(i)
	}
	prices[15] = prices[14] - 7

	out := wilderRSI(prices, RSIPeriod)
	if out[14] != 100 {
		t.Fatalf("seeded rsi = %f, want 100", out[14])
	}
	// avgGain = (1*13 + 0)/14, avgLoss = (0*13 + 7)/14.
	rs := (13.0 / 14.0) / (7.0 / 14.0)
	want := 100 - 100/(1+rs)
	if !almostEqual(out[15], want) {
		t.Errorf("rsi[15] = %f, want %f", out[15], want)
	}
}

func TestWilderRSI_TooShort(t *testing.T) {
	out := wilderRSI([]float64{1, 2, 3}, RSIPeriod)
	for i, v := range out {
		if !math.IsNaN(v) {
			t.Errorf("rsi[%d] = %f, want NaN for a short series", i, v)
		}
	}
}
