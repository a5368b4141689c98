package channels_test

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"lossless/internal/channels"
	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/signal"
	"lossless/internal/testsupport"
)

func TestDetectCleanRecordingNoFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)

	d := channels.NewDetector(cfg.Channels, nil)
	out, err := d.Detect(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("flags = %v, want none on clean data", out)
	}
}

func TestDetectNoisyChannelFlagged(t *testing.T) {
	cases := []struct {
		name string
		opts []testsupport.ConfigOption
	}{
		{name: "defaults"},
		{name: "five neighbors", opts: []testsupport.ConfigOption{
			testsupport.WithNeighborCount(5),
			testsupport.WithChannelSensitivity(3.0),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, tc.opts...)
			rec := testsupport.NewNoisyChannelRecording(t, 10, 8, 250, 3)
			noisyName := rec.ChannelNames()[3]

			d := channels.NewDetector(cfg.Channels, nil)
			out, err := d.Detect(context.Background(), rec, nil)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if len(out) != 1 {
				t.Fatalf("flags = %d, want exactly one", len(out))
			}
			f := out[0]
			if f.Label() != signal.LabelBadChannel {
				t.Errorf("label = %q, want %q", f.Label(), signal.LabelBadChannel)
			}
			if ids := f.IDs(); len(ids) != 1 || ids[0] != noisyName {
				t.Errorf("ids = %v, want [%s]", ids, noisyName)
			}
			if f.Score() <= cfg.Channels.FlagFraction {
				t.Errorf("score %.3f not above flag fraction", f.Score())
			}
		})
	}
}

func TestDetectSensitivityMonotonic(t *testing.T) {
	rec := testsupport.NewNoisyChannelRecording(t, 10, 8, 250, 3)

	counts := make(map[float64]int)
	for _, sens := range []float64{2, 5} {
		cfg := testsupport.NewConfig(t, testsupport.WithChannelSensitivity(sens))
		d := channels.NewDetector(cfg.Channels, nil)
		out, err := d.Detect(context.Background(), rec, nil)
		if err != nil {
			t.Fatalf("detect at sensitivity %g: %v", sens, err)
		}
		counts[sens] = len(out)
	}
	if counts[2] < counts[5] {
		t.Errorf("flags at sensitivity 2 (%d) fewer than at 5 (%d)", counts[2], counts[5])
	}
}

func TestDetectDeterministic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := channels.NewDetector(cfg.Channels, nil)

	var runs [2][]flags.Flag
	for i := range runs {
		rec := testsupport.NewNoisyChannelRecording(t, 10, 8, 250, 3)
		out, err := d.Detect(context.Background(), rec, nil)
		if err != nil {
			t.Fatalf("detect run %d: %v", i, err)
		}
		runs[i] = out
	}
	if len(runs[0]) != len(runs[1]) {
		t.Fatalf("flag counts differ: %d vs %d", len(runs[0]), len(runs[1]))
	}
	for i := range runs[0] {
		if runs[0][i].Key() != runs[1][i].Key() {
			t.Errorf("flag %d differs: %s vs %s", i, runs[0][i].Key(), runs[1][i].Key())
		}
	}
}

func TestDetectRespectsExclusions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewNoisyChannelRecording(t, 10, 8, 250, 3)
	noisyName := rec.ChannelNames()[3]

	d := channels.NewDetector(cfg.Channels, nil)
	out, err := d.Detect(context.Background(), rec, []string{noisyName})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("flags = %v, want none once the noisy channel is excluded", out)
	}
}

func TestDetectNeighborCountTooLarge(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithNeighborCount(12))
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)

	d := channels.NewDetector(cfg.Channels, nil)
	_, err := d.Detect(context.Background(), rec, nil)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration", err)
	}
}

func TestDetectBridgedPairFlagged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewBridgedRecording(t, 10, 8, 250, 4, 5)
	names := rec.ChannelNames()

	d := channels.NewDetector(cfg.Channels, nil)
	out, err := d.Detect(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	bridged := make(map[string]bool)
	for _, f := range out {
		if f.Label() != signal.LabelBadBridge {
			t.Errorf("unexpected flag %s %v", f.Label(), f.IDs())
			continue
		}
		for _, id := range f.IDs() {
			bridged[id] = true
		}
	}
	if !bridged[names[4]] || !bridged[names[5]] {
		t.Errorf("bridged flags name %v, want both %s and %s", bridged, names[4], names[5])
	}
}

func TestDetectDoesNotModifySamples(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewNoisyChannelRecording(t, 10, 8, 250, 3)
	before := rec.Snapshot()

	d := channels.NewDetector(cfg.Channels, nil)
	if _, err := d.Detect(context.Background(), rec, nil); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !mat.Equal(before, rec.Snapshot()) {
		t.Error("detection modified the sample matrix")
	}
}
