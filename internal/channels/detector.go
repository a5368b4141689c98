package channels

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"lossless/internal/config"
	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/logging"
	"lossless/internal/robust"
	"lossless/internal/signal"
)

// StageName identifies this detector in errors, logs, and audit records.
const StageName = "channels"

// Detector flags channels whose signal the spatial neighbor consensus
// cannot predict.
type Detector struct {
	cfg    config.Channels
	logger *slog.Logger
}

// NewDetector constructs a Detector. A nil logger disables logging.
func NewDetector(cfg config.Channels, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "channels"))
	return &Detector{cfg: cfg, logger: logger}
}

// Detect evaluates every EEG channel not in the exclusion set and returns
// a channel flag for each one whose badly-predicted window fraction
// exceeds the configured proportion, plus bridged-channel flags. The
// recording is not modified.
func (d *Detector) Detect(ctx context.Context, rec *signal.Recording, excluded []string) ([]flags.Flag, error) {
	logger := logging.WithContext(ctx, d.logger)

	usable := usableChannels(rec, excluded)
	if len(usable)-1 < d.cfg.NeighborCount {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate neighbors",
			fmt.Sprintf("neighbor_count %d requires more than %d unflagged channels",
				d.cfg.NeighborCount, len(usable)), nil)
	}

	windowSamples := int(d.cfg.WindowSeconds * rec.SampleRate())
	if windowSamples < 2 {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate window",
			fmt.Sprintf("window_s %g spans fewer than two samples at %g Hz",
				d.cfg.WindowSeconds, rec.SampleRate()), nil)
	}
	if windowSamples > rec.Samples() {
		windowSamples = rec.Samples()
	}
	nWindows := rec.Samples() / windowSamples

	rows := make([][]float64, len(rec.Channels()))
	for _, ci := range usable {
		rows[ci] = rec.Row(ci)
	}

	avoid := dispersionOutliers(rows, usable, d.cfg.Sensitivity)
	if len(avoid) > 0 {
		logger.Debug("dispersion outliers excluded from neighbor pool",
			logging.Int("count", len(avoid)))
	}

	table := buildNeighborTable(rec.Channels(), usable, avoid, 2*d.cfg.NeighborCount)
	best := d.consensusCorrelations(rows, usable, table, windowSamples, nWindows)

	names := rec.ChannelNames()
	var out []flags.Flag
	fractions := badWindowFractions(best, d.cfg.Sensitivity, d.cfg.CorrelationFloor)
	for i, frac := range fractions {
		if frac > d.cfg.FlagFraction {
			name := names[usable[i]]
			logger.Info("channel flagged",
				logging.String("channel", name),
				logging.Float64("bad_window_fraction", frac))
			out = append(out, flags.New(flags.KindChannel, signal.LabelBadChannel, []string{name}, frac))
		}
	}

	out = append(out, d.bridgedFlags(rows, usable, table, windowSamples, nWindows, names, logger)...)
	return out, nil
}

// usableChannels returns indices of EEG channels not in the exclusion set.
func usableChannels(rec *signal.Recording, excluded []string) []int {
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[name] = struct{}{}
	}
	var usable []int
	names := rec.ChannelNames()
	for _, ci := range rec.ChannelsOfKind(signal.KindEEG) {
		if _, ok := skip[names[ci]]; ok {
			continue
		}
		usable = append(usable, ci)
	}
	return usable
}

// dispersionOutliers finds channels whose overall amplitude dispersion is a
// high robust outlier. They still get evaluated but are kept out of the
// neighbor pool so they cannot corrupt the consensus for others.
func dispersionOutliers(rows [][]float64, usable []int, sensitivity float64) map[int]struct{} {
	stds := make([]float64, len(usable))
	for i, ci := range usable {
		stds[i] = math.Sqrt(variance(rows[ci]))
	}
	avoid := make(map[int]struct{})
	for _, i := range robust.HighOutliers(stds, sensitivity) {
		avoid[usable[i]] = struct{}{}
	}
	return avoid
}

// consensusCorrelations computes, per (usable channel, window), the best
// correlation between the observed signal and any seeded random neighbor
// subset's per-sample median prediction.
func (d *Detector) consensusCorrelations(rows [][]float64, usable []int, table *neighborTable, windowSamples, nWindows int) [][]float64 {
	rng := rand.New(rand.NewPCG(d.cfg.Seed, d.cfg.Seed))

	// Subsets are drawn once per channel and reused across windows; the
	// draw order is fixed by the usable-channel iteration so results are
	// reproducible for a given seed.
	subsets := make([][][]int, len(usable))
	for i := range usable {
		pool := table.pools[i]
		subsets[i] = make([][]int, d.cfg.Resamples)
		for r := 0; r < d.cfg.Resamples; r++ {
			perm := rng.Perm(len(pool))
			subset := make([]int, d.cfg.NeighborCount)
			for k := 0; k < d.cfg.NeighborCount; k++ {
				subset[k] = pool[perm[k]]
			}
			subsets[i][r] = subset
		}
	}

	best := make([][]float64, len(usable))
	predicted := make([]float64, windowSamples)
	for i, ci := range usable {
		best[i] = make([]float64, nWindows)
		for w := 0; w < nWindows; w++ {
			start := w * windowSamples
			observed := rows[ci][start : start+windowSamples]
			maxCorr := math.Inf(-1)
			for _, subset := range subsets[i] {
				consensusPredict(predicted, rows, subset, start)
				if c := math.Abs(safeCorrelation(observed, predicted)); c > maxCorr {
					maxCorr = c
				}
			}
			best[i][w] = maxCorr
		}
	}
	return best
}

// badWindowFractions applies the robust low-outlier test per window across
// channels and returns, per channel, the fraction of windows where its
// prediction quality was both an outlier and below the absolute floor.
func badWindowFractions(best [][]float64, sensitivity, floor float64) []float64 {
	if len(best) == 0 {
		return nil
	}
	nWindows := len(best[0])
	badCounts := make([]int, len(best))
	column := make([]float64, len(best))
	for w := 0; w < nWindows; w++ {
		for i := range best {
			column[i] = best[i][w]
		}
		zs := robust.ZScores(column)
		for i := range best {
			if zs[i] < -sensitivity && column[i] < floor {
				badCounts[i]++
			}
		}
	}
	fractions := make([]float64, len(best))
	for i, c := range badCounts {
		fractions[i] = float64(c) / float64(nWindows)
	}
	return fractions
}

// Electrolyte bridges leave a pair of electrodes carrying essentially the
// same signal: pairwise correlation pinned at one with almost no spread
// across windows. Both conditions gate the flag; an outlying
// median-over-spread ratio alone is not enough.
const (
	bridgeCorrMin = 0.99999
	bridgeIQRMin  = 1e-12
)

// bridgedFlags computes, per channel, the best pairwise correlation with
// its nearest spatial neighbors in each window, then flags channels whose
// median correlation is pinned at one and whose median/spread ratio is a
// trimmed outlier across channels.
func (d *Detector) bridgedFlags(rows [][]float64, usable []int, table *neighborTable, windowSamples, nWindows int, names []string, logger *slog.Logger) []flags.Flag {
	medians := make([]float64, len(usable))
	msr := make([]float64, len(usable))
	series := make([]float64, nWindows)
	for i, ci := range usable {
		neighbors := table.pools[i]
		if len(neighbors) > d.cfg.NeighborCount {
			neighbors = neighbors[:d.cfg.NeighborCount]
		}
		for w := 0; w < nWindows; w++ {
			start := w * windowSamples
			observed := rows[ci][start : start+windowSamples]
			best := 0.0
			for _, cj := range neighbors {
				if c := math.Abs(safeCorrelation(observed, rows[cj][start:start+windowSamples])); c > best {
					best = c
				}
			}
			series[w] = best
		}
		medians[i] = robust.Median(series)
		iqr := robust.IQR(series)
		if iqr < bridgeIQRMin {
			iqr = bridgeIQRMin
		}
		msr[i] = medians[i] / iqr
	}
	if len(msr) < 2 {
		return nil
	}

	mean := robust.TrimmedMean(msr, d.cfg.BridgeTrim)
	std := robust.TrimmedStd(msr, d.cfg.BridgeTrim)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	threshold := mean + std*d.cfg.BridgeZ

	var out []flags.Flag
	for i, v := range msr {
		if medians[i] >= bridgeCorrMin && v > threshold {
			name := names[usable[i]]
			logger.Info("bridged channel flagged",
				logging.String("channel", name),
				logging.Float64("bridge_score", v))
			out = append(out, flags.New(flags.KindChannel, signal.LabelBadBridge, []string{name}, v))
		}
	}
	return out
}
