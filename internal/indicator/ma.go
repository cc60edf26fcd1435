package indicator

import "math"

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// MovingAverage is the bulk, offline simple moving average of series.
// The result has the same length as series; entries before the first full
// window are NaN. A window outside [1, len(series)] yields all NaN.
func MovingAverage(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 1 || window > len(series) {
		return out
	}

	sum := 0.0
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// finite maps NaN and ±Inf to the unavailable sentinel.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
