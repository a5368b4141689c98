package epochs_test

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"lossless/internal/epochs"
	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/signal"
	"lossless/internal/testsupport"
)

func TestDetectCleanRecordingNoFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)

	d := epochs.NewDetector(cfg.Epochs, nil)
	out, err := d.Detect(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("flags = %v, want none on clean data", out)
	}
}

func TestDetectBurstWindowFlagged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)
	testsupport.InjectBurst(t, rec, 500, 750, 200)

	d := epochs.NewDetector(cfg.Epochs, nil)
	out, err := d.Detect(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("flags = %d, want exactly the burst window", len(out))
	}
	f := out[0]
	if f.Label() != signal.LabelBadEpoch {
		t.Errorf("label = %q, want %q", f.Label(), signal.LabelBadEpoch)
	}
	if ids := f.IDs(); len(ids) != 1 || ids[0] != flags.EpochID(500, 750) {
		t.Errorf("ids = %v, want [500:750]", ids)
	}
}

func TestDetectGapBetweenBursts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Epochs.MinGapMS = 1500
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)
	testsupport.InjectBurst(t, rec, 500, 750, 200)
	testsupport.InjectBurst(t, rec, 1000, 1250, 200)

	d := epochs.NewDetector(cfg.Epochs, nil)
	out, err := d.Detect(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	var gaps []flags.Flag
	for _, f := range out {
		if f.Label() == signal.LabelBadGap {
			gaps = append(gaps, f)
		}
	}
	if len(gaps) != 1 {
		t.Fatalf("gap flags = %d, want 1 (all flags: %v)", len(gaps), out)
	}
	if ids := gaps[0].IDs(); len(ids) != 1 || ids[0] != flags.EpochID(750, 1000) {
		t.Errorf("gap ids = %v, want [750:1000]", ids)
	}
}

func TestDetectEpochRangesWithinRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)
	testsupport.InjectBurst(t, rec, 0, 250, 300)
	testsupport.InjectBurst(t, rec, 1750, 2000, 300)

	d := epochs.NewDetector(cfg.Epochs, nil)
	out, err := d.Detect(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	for _, f := range out {
		for _, id := range f.IDs() {
			start, end, err := flags.ParseEpochID(id)
			if err != nil {
				t.Fatalf("parse %q: %v", id, err)
			}
			if start < 0 || end > rec.Samples() || start >= end {
				t.Errorf("range %q outside recording", id)
			}
		}
	}
}

func TestDetectAllChannelsExcluded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewCleanRecording(t, 3, 8, 250)

	d := epochs.NewDetector(cfg.Epochs, nil)
	_, err := d.Detect(context.Background(), rec, rec.ChannelNames())
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration", err)
	}
}

func TestDetectDoesNotModifySamples(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewCleanRecording(t, 10, 8, 250)
	testsupport.InjectBurst(t, rec, 500, 750, 200)
	before := rec.Snapshot()

	d := epochs.NewDetector(cfg.Epochs, nil)
	if _, err := d.Detect(context.Background(), rec, nil); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !mat.Equal(before, rec.Snapshot()) {
		t.Error("detection modified the sample matrix")
	}
}
