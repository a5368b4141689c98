package ica

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"lossless/internal/flags"
	"lossless/internal/signal"
)

// Class names the artifact family a flagged component belongs to.
type Class string

const (
	ClassOcular   Class = "ocular"
	ClassCardiac  Class = "cardiac"
	ClassMuscular Class = "muscular"
	ClassOther    Class = "other"
)

// hfCutoffFraction splits the spectrum for the muscular high-frequency
// ratio at this fraction of the Nyquist frequency.
const hfCutoffFraction = 0.4

func (c Class) label() string {
	switch c {
	case ClassOcular:
		return signal.LabelBadICOcular
	case ClassCardiac:
		return signal.LabelBadICCardiac
	case ClassMuscular:
		return signal.LabelBadICMuscular
	default:
		return signal.LabelBadICOther
	}
}

// LabelComponents scores each component of the decomposition against the
// recording's reference channels and spectral shape, and returns one
// component flag per artifactual component. Neural components produce no
// flag at all. The result is deterministic for a given decomposition.
func (s *Stage) LabelComponents(dec *Decomposition, rec *signal.Recording) []flags.Flag {
	eogRefs := referenceRows(rec, signal.KindEOG)
	ecgRefs := referenceRows(rec, signal.KindECG)

	var out []flags.Flag
	for i := 0; i < dec.Components(); i++ {
		src := dec.Source(i)
		id := fmt.Sprintf("ic%02d", i)

		if corr := bestCorrelation(src, eogRefs); corr >= s.cfg.ArtifactCorrelationThreshold {
			out = append(out, flags.New(flags.KindComponent, ClassOcular.label(), []string{id}, corr))
			s.logComponent(id, ClassOcular, corr)
			continue
		}
		if corr := bestCorrelation(src, ecgRefs); corr >= s.cfg.ArtifactCorrelationThreshold {
			out = append(out, flags.New(flags.KindComponent, ClassCardiac.label(), []string{id}, corr))
			s.logComponent(id, ClassCardiac, corr)
			continue
		}

		kurt := excessKurtosis(src)
		hf := highFrequencyRatio(src)
		if hf > s.cfg.HFRatioThreshold && kurt > 1 {
			out = append(out, flags.New(flags.KindComponent, ClassMuscular.label(), []string{id}, hf))
			s.logComponent(id, ClassMuscular, hf)
			continue
		}
		if kurt > s.cfg.KurtosisThreshold {
			out = append(out, flags.New(flags.KindComponent, ClassOther.label(), []string{id}, kurt))
			s.logComponent(id, ClassOther, kurt)
		}
	}
	return out
}

func (s *Stage) logComponent(id string, class Class, score float64) {
	s.logger.Debug("component flagged",
		slog.String("component", id),
		slog.String("class", string(class)),
		slog.Float64("score", score))
}

func referenceRows(rec *signal.Recording, kind signal.Kind) [][]float64 {
	var rows [][]float64
	for _, ci := range rec.ChannelsOfKind(kind) {
		rows = append(rows, rec.Row(ci))
	}
	return rows
}

// bestCorrelation returns the largest absolute Pearson correlation between
// src and any of the reference rows, or 0 when there are none.
func bestCorrelation(src []float64, refs [][]float64) float64 {
	best := 0.0
	for _, ref := range refs {
		n := len(src)
		if len(ref) < n {
			n = len(ref)
		}
		if n < 2 {
			continue
		}
		c := stat.Correlation(src[:n], ref[:n], nil)
		if math.IsNaN(c) {
			continue
		}
		if a := math.Abs(c); a > best {
			best = a
		}
	}
	return best
}

// excessKurtosis returns the fourth standardized moment minus 3, so a
// Gaussian source scores near zero.
func excessKurtosis(xs []float64) float64 {
	if len(xs) < 4 {
		return 0
	}
	mean, variance := stat.MeanVariance(xs, nil)
	if variance <= 0 {
		return 0
	}
	m4 := stat.MomentAbout(4, xs, mean, nil)
	return m4/(variance*variance) - 3
}

// highFrequencyRatio returns the share of spectral power above the
// high-frequency cutoff, ignoring the DC bin.
func highFrequencyRatio(xs []float64) float64 {
	if len(xs) < 4 {
		return 0
	}
	fft := fourier.NewFFT(len(xs))
	coeffs := fft.Coefficients(nil, xs)

	cutoff := hfCutoffFraction * 0.5 // as a fraction of the sample rate
	total := 0.0
	high := 0.0
	for i := 1; i < len(coeffs); i++ {
		p := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		total += p
		if float64(i)/float64(len(xs)) >= cutoff {
			high += p
		}
	}
	if total <= 0 {
		return 0
	}
	return high / total
}
