package ica_test

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"lossless/internal/flags"
	"lossless/internal/ica"
	"lossless/internal/signal"
	"lossless/internal/testsupport"
)

// refRecording builds a two-channel recording whose non-EEG channel carries
// the given reference trace, for driving the labeler directly.
func refRecording(t *testing.T, kind signal.Kind, ref []float64, rate float64) *signal.Recording {
	t.Helper()

	data := mat.NewDense(2, len(ref), nil)
	for i, v := range ref {
		data.Set(0, i, math.Sin(2*math.Pi*10*float64(i)/rate))
		data.Set(1, i, v)
	}
	channels := []signal.Channel{
		{Name: "E1", Kind: signal.KindEEG, Position: [3]float64{0.1, 0, 0}},
		{Name: "REF1", Kind: kind, Position: [3]float64{0, 0.12, 0}},
	}
	rec, err := signal.New(channels, data, rate)
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	return rec
}

// pulseTrain renders slow gaussian pulses, one per period, width sigma
// samples. Heavy-tailed with almost no high-frequency power.
func pulseTrain(samples, period int, sigma float64) []float64 {
	wave := make([]float64, samples)
	for s := range wave {
		d := (float64(s%period) - float64(period)/2) / sigma
		wave[s] = math.Exp(-d * d / 2)
	}
	return wave
}

func sourcesMatrix(rows ...[]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m
}

func labels(fs []flags.Flag) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Label()
	}
	return out
}

func TestLabelComponentsReferenceCorrelation(t *testing.T) {
	const (
		rate    = 250.0
		samples = 2000
	)
	cfg := testsupport.NewConfig(t)
	stage := ica.NewStage(cfg.ICA, nil)
	trace := pulseTrain(samples, 500, 5)

	cases := []struct {
		name string
		kind signal.Kind
		want string
	}{
		{"eog reference", signal.KindEOG, signal.LabelBadICOcular},
		{"ecg reference", signal.KindECG, signal.LabelBadICCardiac},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := refRecording(t, tc.kind, trace, rate)
			dec := ica.NewStubDecomposition([]string{"E1"}, sourcesMatrix(trace), rate)

			got := stage.LabelComponents(dec, rec)
			if len(got) != 1 {
				t.Fatalf("flags = %d, want 1", len(got))
			}
			if got[0].Label() != tc.want {
				t.Errorf("label = %q, want %q", got[0].Label(), tc.want)
			}
			if ids := got[0].IDs(); len(ids) != 1 || ids[0] != "ic00" {
				t.Errorf("ids = %v, want [ic00]", ids)
			}
			if got[0].Score() < cfg.ICA.ArtifactCorrelationThreshold {
				t.Errorf("score %.3f below threshold", got[0].Score())
			}
		})
	}
}

func TestLabelComponentsMuscular(t *testing.T) {
	const (
		rate    = 250.0
		samples = 2000
	)
	cfg := testsupport.NewConfig(t)
	stage := ica.NewStage(cfg.ICA, nil)

	// High-frequency oscillation gated on for a tenth of the time: spiky
	// and spectrally concentrated well above the cutoff.
	burst := make([]float64, samples)
	for s := range burst {
		if s%500 < 50 {
			burst[s] = math.Sin(2 * math.Pi * 0.3 * float64(s))
		}
	}
	rec := refRecording(t, signal.KindEOG, make([]float64, samples), rate)
	dec := ica.NewStubDecomposition([]string{"E1"}, sourcesMatrix(burst), rate)

	got := stage.LabelComponents(dec, rec)
	if len(got) != 1 || got[0].Label() != signal.LabelBadICMuscular {
		t.Fatalf("flags = %v, want one %s", labels(got), signal.LabelBadICMuscular)
	}
}

func TestLabelComponentsOther(t *testing.T) {
	const (
		rate    = 250.0
		samples = 2000
	)
	cfg := testsupport.NewConfig(t)
	stage := ica.NewStage(cfg.ICA, nil)

	// Slow heavy-tailed pulses: extreme kurtosis, negligible power above
	// the high-frequency cutoff.
	rec := refRecording(t, signal.KindEOG, make([]float64, samples), rate)
	dec := ica.NewStubDecomposition([]string{"E1"}, sourcesMatrix(pulseTrain(samples, 200, 5)), rate)

	got := stage.LabelComponents(dec, rec)
	if len(got) != 1 || got[0].Label() != signal.LabelBadICOther {
		t.Fatalf("flags = %v, want one %s", labels(got), signal.LabelBadICOther)
	}
}

func TestLabelComponentsNeuralUnflagged(t *testing.T) {
	const (
		rate    = 250.0
		samples = 2000
	)
	cfg := testsupport.NewConfig(t)
	stage := ica.NewStage(cfg.ICA, nil)

	sine := make([]float64, samples)
	for s := range sine {
		sine[s] = math.Sin(2 * math.Pi * 10 * float64(s) / rate)
	}
	rec := refRecording(t, signal.KindEOG, make([]float64, samples), rate)
	dec := ica.NewStubDecomposition([]string{"E1"}, sourcesMatrix(sine), rate)

	if got := stage.LabelComponents(dec, rec); len(got) != 0 {
		t.Fatalf("flags = %v, want none for a neural oscillation", labels(got))
	}
}

func TestBlinkComponentFlaggedOcular(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.ICA.Tolerance = 5e-3
	rec := testsupport.NewBlinkRecording(t, 6, 8, 250)

	stage := ica.NewStage(cfg.ICA, nil)
	dec, err := stage.Fit(context.Background(), rec, nil, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	got := stage.LabelComponents(dec, rec)
	found := false
	for _, f := range got {
		if f.Label() == signal.LabelBadICOcular {
			found = true
			if f.Score() < cfg.ICA.ArtifactCorrelationThreshold {
				t.Errorf("ocular score %.3f below threshold", f.Score())
			}
		}
	}
	if !found {
		t.Fatalf("flags = %v, want an ocular component", labels(got))
	}
}
