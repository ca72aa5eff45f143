package feature

import "math"

// Series helpers operate on per-country columns ordered by date. Missing
// history is carried as NaN until the final fill pass.

var nan = math.NaN()

// shift returns the series lagged by k rows; the head is NaN.
func shift(x []float64, k int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i < k {
			out[i] = nan
			continue
		}
		out[i] = x[i-k]
	}
	return out
}

// diff returns the first difference; the head is NaN.
func diff(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i == 0 {
			out[i] = nan
			continue
		}
		out[i] = x[i] - x[i-1]
	}
	return out
}

// pctReturn returns the relative first difference x_t/x_{t-1} - 1.
func pctReturn(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i == 0 || x[i-1] == 0 {
			out[i] = nan
			continue
		}
		out[i] = (x[i] - x[i-1]) / x[i-1]
	}
	return out
}

// rollingMean computes the trailing-window mean over at most w rows,
// ignoring NaN. Windows with no observed value yield NaN.
func rollingMean(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		var n int
		for j := lo; j <= i; j++ {
			if math.IsNaN(x[j]) {
				continue
			}
			sum += x[j]
			n++
		}
		if n == 0 {
			out[i] = nan
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// rollingStd computes the trailing-window sample deviation over at most w
// rows, ignoring NaN. Fewer than two observed values yield NaN.
func rollingStd(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		var n int
		for j := lo; j <= i; j++ {
			if math.IsNaN(x[j]) {
				continue
			}
			sum += x[j]
			n++
		}
		if n < 2 {
			out[i] = nan
			continue
		}
		m := sum / float64(n)
		var ss float64
		for j := lo; j <= i; j++ {
			if math.IsNaN(x[j]) {
				continue
			}
			d := x[j] - m
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

// rollingZScore standardizes each value against its trailing window of w rows
// including the current one. A degenerate window (deviation zero or
// undefined) yields zero.
func rollingZScore(x []float64, w int) []float64 {
	means := rollingMean(x, w)
	stds := rollingStd(x, w)
	out := make([]float64, len(x))
	for i := range x {
		if !(stds[i] > 0) || math.IsNaN(x[i]) {
			out[i] = 0
			continue
		}
		out[i] = (x[i] - means[i]) / stds[i]
	}
	return out
}

// wilderRSI computes the relative strength index with Wilder smoothing:
// average gain and loss are seeded with the simple mean of the first period
// moves, then follow the recurrence avg = (prev*(period-1) + cur) / period.
// Rows before the seed is complete are NaN; a zero average loss saturates the
// index at 100.
func wilderRSI(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	for i := range out {
		out[i] = nan
	}
	if len(prices) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		move := prices[i] - prices[i-1]
		if move > 0 {
			avgGain += move
		} else {
			avgLoss -= move
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		move := prices[i] - prices[i-1]
		var gain, loss float64
		if move > 0 {
			gain = move
		} else {
			loss = -move
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// sub returns the elementwise difference a - b.
func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
