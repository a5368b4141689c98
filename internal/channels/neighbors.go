package channels

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"lossless/internal/signal"
)

// neighborTable holds, per evaluated channel, the candidate neighbor pool
// ordered by spatial distance.
type neighborTable struct {
	pools [][]int
}

// buildNeighborTable ranks every usable channel's peers by Euclidean
// distance between electrode positions. Channels in the avoid set (high
// dispersion outliers) are pushed to the back of each pool so they only
// serve as neighbors when nothing closer remains.
func buildNeighborTable(channels []signal.Channel, usable []int, avoid map[int]struct{}, poolSize int) *neighborTable {
	table := &neighborTable{pools: make([][]int, len(usable))}
	for i, ci := range usable {
		type candidate struct {
			idx  int
			dist float64
			bad  bool
		}
		cands := make([]candidate, 0, len(usable)-1)
		for _, cj := range usable {
			if cj == ci {
				continue
			}
			_, bad := avoid[cj]
			cands = append(cands, candidate{idx: cj, dist: distance(channels[ci].Position, channels[cj].Position), bad: bad})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].bad != cands[b].bad {
				return !cands[a].bad
			}
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return cands[a].idx < cands[b].idx
		})
		n := poolSize
		if n > len(cands) {
			n = len(cands)
		}
		pool := make([]int, n)
		for j := 0; j < n; j++ {
			pool[j] = cands[j].idx
		}
		table.pools[i] = pool
	}
	return table
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// consensusPredict fills dst with the per-sample median of the subset's
// rows over [start, end).
func consensusPredict(dst []float64, rows [][]float64, subset []int, start int) {
	vals := make([]float64, len(subset))
	for t := range dst {
		for k, ch := range subset {
			vals[k] = rows[ch][start+t]
		}
		sort.Float64s(vals)
		mid := len(vals) / 2
		if len(vals)%2 == 1 {
			dst[t] = vals[mid]
		} else {
			dst[t] = (vals[mid-1] + vals[mid]) / 2
		}
	}
}

// safeCorrelation is Pearson correlation with defined zero-variance
// behavior: two flat series agree perfectly, one flat series matches
// nothing.
func safeCorrelation(x, y []float64) float64 {
	vx, vy := variance(x), variance(y)
	switch {
	case vx == 0 && vy == 0:
		return 1
	case vx == 0 || vy == 0:
		return 0
	}
	return stat.Correlation(x, y, nil)
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var ss float64
	for _, v := range xs {
		d := v - mean
		ss += d * d
	}
	return ss / float64(len(xs))
}
