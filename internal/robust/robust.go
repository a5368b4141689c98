package robust

import (
	"math"

	"github.com/montanaflynn/stats"
)

// madScale makes the MAD a consistent estimator of the standard deviation
// under normality.
const madScale = 1.4826

// Median returns the sample median, or NaN for an empty sample.
func Median(values []float64) float64 {
	m, err := stats.Median(values)
	if err != nil {
		return math.NaN()
	}
	return m
}

// MAD returns the scaled median absolute deviation around the median.
func MAD(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	med := Median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	return madScale * Median(dev)
}

// ZScores returns robust z-scores (median/MAD). A zero-variance sample
// yields all-zero scores rather than dividing by zero.
func ZScores(values []float64) []float64 {
	scores := make([]float64, len(values))
	if len(values) == 0 {
		return scores
	}
	med := Median(values)
	mad := MAD(values)
	if mad == 0 {
		return scores
	}
	for i, v := range values {
		scores[i] = (v - med) / mad
	}
	return scores
}

// Outliers returns the indices whose robust z-score magnitude exceeds
// sensitivity. A zero-variance sample yields no outliers.
func Outliers(values []float64, sensitivity float64) []int {
	var out []int
	for i, z := range ZScores(values) {
		if math.Abs(z) > sensitivity {
			out = append(out, i)
		}
	}
	return out
}

// LowOutliers returns the indices whose robust z-score falls below
// -sensitivity, for distributions where only the low tail is anomalous
// (e.g. neighbor correlations).
func LowOutliers(values []float64, sensitivity float64) []int {
	var out []int
	for i, z := range ZScores(values) {
		if z < -sensitivity {
			out = append(out, i)
		}
	}
	return out
}

// HighOutliers returns the indices whose robust z-score exceeds sensitivity.
func HighOutliers(values []float64, sensitivity float64) []int {
	var out []int
	for i, z := range ZScores(values) {
		if z > sensitivity {
			out = append(out, i)
		}
	}
	return out
}

// Quantile returns the q-th quantile (q in [0, 1]), or NaN for an empty sample.
func Quantile(values []float64, q float64) float64 {
	p, err := stats.Percentile(values, q*100)
	if err != nil {
		return math.NaN()
	}
	return p
}

// IQR returns the interquartile range, or NaN for an empty sample.
func IQR(values []float64) float64 {
	r, err := stats.InterQuartileRange(values)
	if err != nil {
		return math.NaN()
	}
	return r
}
