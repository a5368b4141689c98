package testsupport

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"lossless/internal/signal"
)

// Synthetic recordings share two sinusoidal sources mixed with smoothly
// position-dependent gains, so spatial neighbors correlate strongly, plus a
// seeded jitter per channel that keeps channels from being exact linear
// combinations of each other. The jitter sits below the decomposition's
// rank cutoff, so fits see only the shared sources.

const (
	jitterAmplitude = 1e-5
	jitterSeed      = 20240117
)

// NewCleanRecording builds an artifact-free EEG recording with channels
// placed on a circle. Deterministic for given dimensions.
func NewCleanRecording(t testing.TB, nChannels int, seconds, rate float64) *signal.Recording {
	t.Helper()

	samples := int(seconds * rate)
	channels := circleChannels(nChannels)
	data := mat.NewDense(nChannels, samples, nil)
	rng := rand.New(rand.NewPCG(jitterSeed, jitterSeed))

	for ch := 0; ch < nChannels; ch++ {
		theta := 2 * math.Pi * float64(ch) / float64(nChannels)
		a := 1.0 + 0.1*math.Cos(theta)
		b := 0.5 + 0.1*math.Sin(theta)
		for s := 0; s < samples; s++ {
			tSec := float64(s) / rate
			v := a*math.Sin(2*math.Pi*10*tSec) + b*math.Sin(2*math.Pi*6*tSec+0.5)
			v += jitterAmplitude * (2*rng.Float64() - 1)
			data.Set(ch, s, v)
		}
	}

	rec, err := signal.New(channels, data, rate)
	if err != nil {
		t.Fatalf("clean recording: %v", err)
	}
	return rec
}

// NewNoisyChannelRecording builds a clean recording and replaces one
// channel with pure high-amplitude noise for the entire duration.
func NewNoisyChannelRecording(t testing.TB, nChannels int, seconds, rate float64, noisy int) *signal.Recording {
	t.Helper()

	rec := NewCleanRecording(t, nChannels, seconds, rate)
	rng := rand.New(rand.NewPCG(jitterSeed+1, jitterSeed+1))
	row := rec.Row(noisy)
	for s := range row {
		row[s] = 50 * rng.NormFloat64()
	}
	return rec
}

// NewBridgedRecording builds a clean recording and overwrites one channel
// with an exact copy of a spatially adjacent one, mimicking an electrolyte
// bridge between the two electrodes.
func NewBridgedRecording(t testing.TB, nChannels int, seconds, rate float64, source, bridged int) *signal.Recording {
	t.Helper()

	rec := NewCleanRecording(t, nChannels, seconds, rate)
	copy(rec.Row(bridged), rec.Row(source))
	return rec
}

// NewBlinkRecording builds a clean recording, injects a periodic
// blink-like waveform into the frontal-most channels with decaying gain,
// and appends an EOG reference channel carrying the blink waveform itself.
func NewBlinkRecording(t testing.TB, nChannels int, seconds, rate float64) *signal.Recording {
	t.Helper()

	samples := int(seconds * rate)
	clean := NewCleanRecording(t, nChannels, seconds, rate)

	blink := blinkWaveform(samples, rate)

	channels := append(clean.Channels(), signal.Channel{
		Name:     "EOG1",
		Kind:     signal.KindEOG,
		Position: [3]float64{0, 0.12, 0.02},
	})
	data := mat.NewDense(nChannels+1, samples, nil)
	// Gains keep the blink below the sinusoid variance inside any one
	// window, so the frontal channels still track the neighbor consensus
	// and only the ICA stage isolates the artifact.
	for ch := 0; ch < nChannels; ch++ {
		gain := 0.0
		if ch < 3 {
			gain = 2.0 / float64(ch+1)
		}
		src := clean.Row(ch)
		for s := 0; s < samples; s++ {
			data.Set(ch, s, src[s]+gain*blink[s])
		}
	}
	for s := 0; s < samples; s++ {
		data.Set(nChannels, s, blink[s])
	}

	rec, err := signal.New(channels, data, rate)
	if err != nil {
		t.Fatalf("blink recording: %v", err)
	}
	return rec
}

// InjectBurst adds a high-amplitude burst to every channel over the given
// sample range, mimicking a movement artifact.
func InjectBurst(t testing.TB, rec *signal.Recording, startSample, endSample int, amplitude float64) {
	t.Helper()

	if endSample > rec.Samples() {
		t.Fatalf("burst range [%d, %d) exceeds %d samples", startSample, endSample, rec.Samples())
	}
	for _, ci := range rec.ChannelsOfKind(signal.KindEEG) {
		row := rec.Row(ci)
		for s := startSample; s < endSample; s++ {
			row[s] += amplitude * math.Sin(2*math.Pi*float64(s-startSample)/float64(endSample-startSample))
		}
	}
}

// blinkWaveform renders a train of gaussian-shaped pulses, one every two
// seconds, 200 ms wide.
func blinkWaveform(samples int, rate float64) []float64 {
	wave := make([]float64, samples)
	period := 2.0
	width := 0.05
	for s := 0; s < samples; s++ {
		tSec := float64(s) / rate
		phase := math.Mod(tSec, period)
		center := period / 2
		d := (phase - center) / width
		wave[s] = math.Exp(-d * d / 2)
	}
	return wave
}

func circleChannels(n int) []signal.Channel {
	channels := make([]signal.Channel, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		channels[i] = signal.Channel{
			Name: fmt.Sprintf("E%d", i+1),
			Kind: signal.KindEEG,
			Position: [3]float64{
				0.1 * math.Cos(theta),
				0.1 * math.Sin(theta),
				0,
			},
		}
	}
	return channels
}
