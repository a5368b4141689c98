package epochs

import (
	"context"
	"fmt"
	"log/slog"

	"lossless/internal/config"
	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/logging"
	"lossless/internal/robust"
	"lossless/internal/signal"
)

// StageName identifies this detector in errors, logs, and audit records.
const StageName = "epochs"

// Detector flags fixed-length windows whose amplitude statistics are
// outliers across the window/channel grid.
type Detector struct {
	cfg    config.Epochs
	logger *slog.Logger
}

// NewDetector constructs a Detector. A nil logger disables logging.
func NewDetector(cfg config.Epochs, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "epochs"))
	return &Detector{cfg: cfg, logger: logger}
}

// Detect partitions the non-excluded channels into non-overlapping windows
// and applies the robust peak-to-peak outlier test twice: per channel
// across windows (channel-specific bursts) and per window across channels
// (global artifacts). A window is flagged when either test implicates more
// than the configured fraction of channels; the fraction is the flag's
// justification score. The recording is not modified.
func (d *Detector) Detect(ctx context.Context, rec *signal.Recording, excludedChannels []string) ([]flags.Flag, error) {
	logger := logging.WithContext(ctx, d.logger)

	included := includedChannels(rec, excludedChannels)
	if len(included) == 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate channels",
			"no channels remain after exclusion", nil)
	}

	windowSamples := int(d.cfg.LengthSeconds * rec.SampleRate())
	if windowSamples < 2 {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate window",
			fmt.Sprintf("epoch_length_s %g spans fewer than two samples at %g Hz",
				d.cfg.LengthSeconds, rec.SampleRate()), nil)
	}
	nWindows := rec.Samples() / windowSamples
	if nWindows == 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate window",
			"epoch length exceeds recording duration", nil)
	}

	ptp := peakToPeak(rec, included, windowSamples, nWindows)
	implicated := outlierMask(ptp, d.cfg.Sensitivity)

	var out []flags.Flag
	var flaggedRanges [][2]int
	for w := 0; w < nWindows; w++ {
		count := 0
		for ch := range implicated {
			if implicated[ch][w] {
				count++
			}
		}
		fraction := float64(count) / float64(len(included))
		if fraction > d.cfg.FlagFraction {
			start, end := w*windowSamples, (w+1)*windowSamples
			logger.Info("epoch flagged",
				logging.Int("start_sample", start),
				logging.Int("end_sample", end),
				logging.Float64("channel_fraction", fraction))
			out = append(out, flags.New(flags.KindEpoch, signal.LabelBadEpoch,
				[]string{flags.EpochID(start, end)}, fraction))
			flaggedRanges = append(flaggedRanges, [2]int{start, end})
		}
	}

	out = append(out, gapFlags(flaggedRanges, d.cfg.MinGapMS, rec.SampleRate())...)
	return out, nil
}

func includedChannels(rec *signal.Recording, excluded []string) []int {
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[name] = struct{}{}
	}
	names := rec.ChannelNames()
	var included []int
	for _, ci := range rec.ChannelsOfKind(signal.KindEEG) {
		if _, ok := skip[names[ci]]; ok {
			continue
		}
		included = append(included, ci)
	}
	return included
}

// peakToPeak computes the per-(channel, window) amplitude summary.
func peakToPeak(rec *signal.Recording, included []int, windowSamples, nWindows int) [][]float64 {
	ptp := make([][]float64, len(included))
	for i, ci := range included {
		row := rec.Row(ci)
		ptp[i] = make([]float64, nWindows)
		for w := 0; w < nWindows; w++ {
			lo, hi := row[w*windowSamples], row[w*windowSamples]
			for _, v := range row[w*windowSamples : (w+1)*windowSamples] {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			ptp[i][w] = hi - lo
		}
	}
	return ptp
}

// outlierMask marks each (channel, window) cell implicated by either
// robust pass over the amplitude grid.
func outlierMask(ptp [][]float64, sensitivity float64) [][]bool {
	nChannels := len(ptp)
	nWindows := len(ptp[0])
	mask := make([][]bool, nChannels)
	for ch := range mask {
		mask[ch] = make([]bool, nWindows)
	}

	// First pass: per channel across windows.
	for ch := range ptp {
		for _, w := range robust.Outliers(ptp[ch], sensitivity) {
			mask[ch][w] = true
		}
	}

	// Second pass: per window across channels.
	column := make([]float64, nChannels)
	for w := 0; w < nWindows; w++ {
		for ch := range ptp {
			column[ch] = ptp[ch][w]
		}
		for _, ch := range robust.Outliers(column, sensitivity) {
			mask[ch][w] = true
		}
	}
	return mask
}
