package robust

import (
	"math"
	"sort"
)

// TrimmedMean returns the mean after removing the ptrim proportion of the
// sample, half from each tail. ptrim in [0, 1).
func TrimmedMean(values []float64, ptrim float64) float64 {
	kept := trim(values, ptrim)
	if len(kept) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range kept {
		sum += v
	}
	return sum / float64(len(kept))
}

// TrimmedStd returns the population standard deviation of the trimmed sample.
func TrimmedStd(values []float64, ptrim float64) float64 {
	kept := trim(values, ptrim)
	if len(kept) == 0 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range kept {
		mean += v
	}
	mean /= float64(len(kept))
	var ss float64
	for _, v := range kept {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(kept)))
}

// trim sorts a copy of values and drops ptrim/2 of the sample from each end.
func trim(values []float64, ptrim float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	if ptrim < 0 {
		ptrim = 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	cut := int(math.Round(float64(n) * ptrim / 2))
	if 2*cut >= n {
		// Degenerate trim: everything would go; fall back to the median.
		return sorted[n/2 : n/2+1]
	}
	return sorted[cut : n-cut]
}
