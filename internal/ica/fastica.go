package ica

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"lossless/internal/config"
	"lossless/internal/faults"
	"lossless/internal/logging"
	"lossless/internal/signal"
)

// StageName identifies this stage in errors, logs, and audit records.
const StageName = "ica"

// eigRatioFloor drops numerically null directions during whitening, so a
// rank-deficient recording yields fewer components than channels.
const eigRatioFloor = 1e-9

// Decomposition is the immutable result of a FastICA fit: the unmixing and
// mixing matrices plus the component time courses over the full recording.
type Decomposition struct {
	channelNames []string
	unmixing     *mat.Dense
	mixing       *mat.Dense
	sources      *mat.Dense
	sampleRate   float64
	iterations   int
	seed         uint64
}

// Components returns the number of independent components.
func (d *Decomposition) Components() int {
	r, _ := d.unmixing.Dims()
	return r
}

// ChannelNames returns the names of the channels the fit included, in
// unmixing column order.
func (d *Decomposition) ChannelNames() []string {
	return append([]string(nil), d.channelNames...)
}

// Unmixing returns a copy of the components-by-channels unmixing matrix.
func (d *Decomposition) Unmixing() *mat.Dense { return mat.DenseCopyOf(d.unmixing) }

// Mixing returns a copy of the channels-by-components mixing matrix.
func (d *Decomposition) Mixing() *mat.Dense { return mat.DenseCopyOf(d.mixing) }

// Source returns component i's time course over the full recording as a
// read-only view.
func (d *Decomposition) Source(i int) []float64 { return d.sources.RawRowView(i) }

// Iterations returns how many fixed-point iterations the fit used.
func (d *Decomposition) Iterations() int { return d.iterations }

// Seed returns the seed the fit was initialized with.
func (d *Decomposition) Seed() uint64 { return d.seed }

// Stage runs the decomposition and component flagging.
type Stage struct {
	cfg    config.ICA
	logger *slog.Logger
}

// NewStage constructs a Stage. A nil logger disables logging.
func NewStage(cfg config.ICA, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "ica"))
	return &Stage{cfg: cfg, logger: logger}
}

// Fit decomposes the recording restricted to non-excluded EEG channels and
// non-masked sample ranges. Masking is logical: excluded segments are left
// out of the fit, never removed from the container. Exhausting the
// iteration budget is a convergence error, not a silent retry.
func (s *Stage) Fit(ctx context.Context, rec *signal.Recording, excludedChannels []string, maskedRanges [][2]int) (*Decomposition, error) {
	logger := logging.WithContext(ctx, s.logger)

	included := includedChannels(rec, excludedChannels)
	if len(included) < 2 {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate channels",
			fmt.Sprintf("decomposition needs at least 2 channels, have %d", len(included)), nil)
	}

	keep := keepMask(rec.Samples(), maskedRanges)
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept < 2*len(included) {
		return nil, faults.Wrap(faults.ErrConfiguration, StageName, "validate mask",
			fmt.Sprintf("only %d samples remain after epoch masking", kept), nil)
	}

	// Fit matrix: included channels by kept samples, centered per row.
	names := rec.ChannelNames()
	channelNames := make([]string, len(included))
	x := mat.NewDense(len(included), kept, nil)
	means := make([]float64, len(included))
	for i, ci := range included {
		channelNames[i] = names[ci]
		row := rec.Row(ci)
		dst := x.RawRowView(i)
		j := 0
		for sIdx, v := range row {
			if keep[sIdx] {
				dst[j] = v
				j++
			}
		}
		means[i] = meanOf(dst)
		for j := range dst {
			dst[j] -= means[i]
		}
	}

	whitener, dewhitener, err := whiten(x)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConvergence, StageName, "whiten", "covariance factorization failed", err)
	}
	nComp, _ := whitener.Dims()

	var z mat.Dense
	z.Mul(whitener, x)

	w, iterations, err := s.fixedPoint(&z, nComp)
	if err != nil {
		return nil, err
	}
	logger.Debug("decomposition converged",
		logging.Int("components", nComp),
		logging.Int("iterations", iterations))

	var unmixing mat.Dense
	unmixing.Mul(w, whitener)
	var mixing mat.Dense
	mixing.Mul(dewhitener, w.T())

	// Component time courses over the full recording, centered with the
	// fit means so masked segments remain comparable.
	full := mat.NewDense(len(included), rec.Samples(), nil)
	for i, ci := range included {
		row := rec.Row(ci)
		dst := full.RawRowView(i)
		for sIdx, v := range row {
			dst[sIdx] = v - means[i]
		}
	}
	var sources mat.Dense
	sources.Mul(&unmixing, full)

	return &Decomposition{
		channelNames: channelNames,
		unmixing:     &unmixing,
		mixing:       &mixing,
		sources:      &sources,
		sampleRate:   rec.SampleRate(),
		iterations:   iterations,
		seed:         s.cfg.Seed,
	}, nil
}

// fixedPoint runs the symmetric FastICA iteration with a tanh contrast
// function on whitened data z.
func (s *Stage) fixedPoint(z *mat.Dense, nComp int) (*mat.Dense, int, error) {
	_, m := z.Dims()
	rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed))

	w := mat.NewDense(nComp, nComp, nil)
	for i := 0; i < nComp; i++ {
		for j := 0; j < nComp; j++ {
			w.Set(i, j, rng.NormFloat64())
		}
	}
	if err := orthonormalize(w); err != nil {
		return nil, 0, faults.Wrap(faults.ErrConvergence, StageName, "fit", "initialization degenerate", err)
	}

	y := mat.NewDense(nComp, m, nil)
	g := mat.NewDense(nComp, m, nil)
	w1 := mat.NewDense(nComp, nComp, nil)
	var delta mat.Dense

	for iter := 1; iter <= s.cfg.MaxIter; iter++ {
		y.Mul(w, z)

		gPrimeMeans := make([]float64, nComp)
		for i := 0; i < nComp; i++ {
			ySrc := y.RawRowView(i)
			gDst := g.RawRowView(i)
			sum := 0.0
			for j, v := range ySrc {
				th := math.Tanh(v)
				gDst[j] = th
				sum += 1 - th*th
			}
			gPrimeMeans[i] = sum / float64(m)
		}

		w1.Mul(g, z.T())
		w1.Scale(1/float64(m), w1)
		for i := 0; i < nComp; i++ {
			for j := 0; j < nComp; j++ {
				w1.Set(i, j, w1.At(i, j)-gPrimeMeans[i]*w.At(i, j))
			}
		}
		if err := orthonormalize(w1); err != nil {
			return nil, 0, faults.Wrap(faults.ErrConvergence, StageName, "fit", "decorrelation degenerate", err)
		}

		delta.Mul(w1, w.T())
		conv := 0.0
		for i := 0; i < nComp; i++ {
			if d := math.Abs(1 - math.Abs(delta.At(i, i))); d > conv {
				conv = d
			}
		}
		w.Copy(w1)

		if conv < s.cfg.Tolerance {
			return w, iter, nil
		}
	}

	return nil, 0, faults.Wrap(faults.ErrConvergence, StageName, "fit",
		fmt.Sprintf("no convergence within %d iterations", s.cfg.MaxIter), nil)
}

// whiten eigendecomposes the covariance of x and returns the whitening
// matrix (components by channels) and its dewhitening inverse, keeping
// only directions whose eigenvalue is numerically significant.
func whiten(x *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	n, m := x.Dims()

	var cov mat.Dense
	cov.Mul(x, x.T())
	cov.Scale(1/float64(m), &cov)

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, cov.At(i, j))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, nil, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	maxVal := values[len(values)-1]
	if maxVal <= 0 {
		return nil, nil, fmt.Errorf("covariance has no positive eigenvalues")
	}

	// Eigenvalues ascend; walk from the top and keep significant ones.
	var keptIdx []int
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] > eigRatioFloor*maxVal {
			keptIdx = append(keptIdx, i)
		}
	}
	k := len(keptIdx)

	whitener := mat.NewDense(k, n, nil)
	dewhitener := mat.NewDense(n, k, nil)
	for r, idx := range keptIdx {
		scale := math.Sqrt(values[idx])
		for c := 0; c < n; c++ {
			v := vectors.At(c, idx)
			whitener.Set(r, c, v/scale)
			dewhitener.Set(c, r, v*scale)
		}
	}
	return whitener, dewhitener, nil
}

// orthonormalize replaces w with the nearest orthonormal matrix via its
// singular value decomposition.
func orthonormalize(w *mat.Dense) error {
	var svd mat.SVD
	if !svd.Factorize(w, mat.SVDThin) {
		return fmt.Errorf("svd failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	w.Mul(&u, v.T())
	return nil
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

func keepMask(samples int, maskedRanges [][2]int) []bool {
	keep := make([]bool, samples)
	for i := range keep {
		keep[i] = true
	}
	for _, r := range maskedRanges {
		start, end := r[0], r[1]
		if start < 0 {
			start = 0
		}
		if end > samples {
			end = samples
		}
		for i := start; i < end; i++ {
			keep[i] = false
		}
	}
	return keep
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
