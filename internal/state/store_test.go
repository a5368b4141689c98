package state_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/signal"
	"lossless/internal/state"
	"lossless/internal/testsupport"
)

func TestStoreRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	const runID = "run-lifecycle"
	if err := store.CreateRun(ctx, runID, "init"); err != nil {
		t.Fatalf("create run: %v", err)
	}

	channelFlags := []flags.Flag{
		flags.New(flags.KindChannel, signal.LabelBadChannel, []string{"E4"}, 0.42),
	}
	if err := store.CommitStage(ctx, runID, "channels", "channels_done", channelFlags); err != nil {
		t.Fatalf("commit channels: %v", err)
	}
	epochFlags := []flags.Flag{
		flags.New(flags.KindEpoch, signal.LabelBadEpoch, []string{"0:250"}, 0.5),
		flags.New(flags.KindEpoch, signal.LabelBadEpoch, []string{"500:750"}, 0.6),
	}
	if err := store.CommitStage(ctx, runID, "epochs", "epochs_done", epochFlags); err != nil {
		t.Fatalf("commit epochs: %v", err)
	}
	if err := store.FinishRun(ctx, runID, "persisted", nil); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "persisted" {
		t.Errorf("status = %q, want persisted", run.Status)
	}
	if run.FinishedAt.IsZero() {
		t.Error("finished_at not recorded")
	}

	stages, err := store.StageRecords(ctx, runID)
	if err != nil {
		t.Fatalf("stage records: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(stages))
	}
	if stages[0].Stage != "channels" || stages[0].FlagCount != 1 {
		t.Errorf("first stage = %+v", stages[0])
	}

	loaded, err := store.LoadFlags(ctx, runID)
	if err != nil {
		t.Fatalf("load flags: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("flags = %d, want 3", len(loaded))
	}
	want := append(channelFlags, epochFlags...)
	for i, f := range loaded {
		if f.Key() != want[i].Key() {
			t.Errorf("flag %d = %s, want %s", i, f.Key(), want[i].Key())
		}
	}
}

func TestStoreFailedRunKeepsCommittedFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	const runID = "run-failed"
	if err := store.CreateRun(ctx, runID, "init"); err != nil {
		t.Fatalf("create run: %v", err)
	}
	committed := []flags.Flag{
		flags.New(flags.KindChannel, signal.LabelBadChannel, []string{"E2"}, 0.9),
	}
	if err := store.CommitStage(ctx, runID, "channels", "channels_done", committed); err != nil {
		t.Fatalf("commit channels: %v", err)
	}

	failure := faults.Classify(faults.Wrap(faults.ErrConvergence, "ica", "fit", "no convergence within 200 iterations", nil))
	if err := store.FinishRun(ctx, runID, "failed", &failure); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.FailureKind != "convergence" {
		t.Errorf("failure kind = %q, want convergence", run.FailureKind)
	}

	loaded, err := store.LoadFlags(ctx, runID)
	if err != nil {
		t.Fatalf("load flags: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Key() != committed[0].Key() {
		t.Errorf("committed flags not retained: %v", loaded)
	}
}

func TestStoreReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	if err := store.CreateRun(ctx, "run-reopen", "init"); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	run, err := reopened.GetRun(ctx, "run-reopen")
	if err != nil {
		t.Fatalf("get run after reopen: %v", err)
	}
	if run.Status != "init" {
		t.Errorf("status = %q, want init", run.Status)
	}
}

func TestWriteBundleAtomicReplace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	bundle := state.Bundle{
		Annotations: []signal.Annotation{
			{Onset: 1, Duration: 1, Label: signal.LabelBadEpoch},
		},
		Decomposition: &state.DecompositionReport{Components: 4, Iterations: 37, Seed: 97, Channels: []string{"E1", "E2"}},
		Audit: state.AuditReport{
			RunID:  "run-bundle",
			Status: "persisted",
			Stages: []state.StageReport{{Stage: "channels", FlagCount: 0}},
			Flags:  []state.FlagRecord{},
		},
	}

	dir, err := state.WriteBundle(cfg.Paths.StateDir, "run-bundle", bundle)
	if err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	for _, name := range []string{"annotations.json", "ica.json", "audit.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("bundle file %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "audit.json"))
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	var audit state.AuditReport
	if err := json.Unmarshal(data, &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if audit.RunID != "run-bundle" || audit.Status != "persisted" {
		t.Errorf("audit = %+v", audit)
	}

	// A rewrite replaces the previous bundle without leaving a temp dir.
	if _, err := state.WriteBundle(cfg.Paths.StateDir, "run-bundle", bundle); err != nil {
		t.Fatalf("rewrite bundle: %v", err)
	}
	if _, err := os.Stat(dir + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp directory left behind: %v", err)
	}
}
