package matcher

import (
	"gonum.org/v1/gonum/stat"
)

// DefaultScoreScale divides the residual to keep scores in a readable range
const DefaultScoreScale = 100

// Score fits candidate ≈ a*query + b by least squares and returns the mean
// squared residual divided by scale. Both slices must have the same length.
// A constant query fits only the intercept.
func Score(query, candidate []float64, scale float64) float64 {
	if len(query) == 0 {
		return 0
	}

	var alpha, beta float64
	if _, variance := stat.MeanVariance(query, nil); !(variance > 0) {
		alpha = stat.Mean(candidate, nil)
	} else {
		alpha, beta = stat.LinearRegression(query, candidate, nil, false)
	}

	var sum float64
	for i, x := range query {
		r := candidate[i] - (alpha + beta*x)
		sum += r * r
	}
	if scale == 0 {
		scale = DefaultScoreScale
	}
	return sum / float64(len(query)) / scale
}

// intensities widens 8-bit pixels for the regression
func intensities(pix []byte) []float64 {
	out := make([]float64, len(pix))
	for i, v := range pix {
		out[i] = float64(v)
	}
	return out
}
