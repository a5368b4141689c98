package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"lossless/internal/channels"
	"lossless/internal/config"
	"lossless/internal/epochs"
	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/ica"
	"lossless/internal/logging"
	"lossless/internal/signal"
	"lossless/internal/state"
)

// Status is a pipeline run state.
type Status string

const (
	StatusInit         Status = "init"
	StatusChannelsDone Status = "channels_done"
	StatusEpochsDone   Status = "epochs_done"
	StatusICADone      Status = "ica_done"
	StatusPersisted    Status = "persisted"
	StatusFailed       Status = "failed"
)

// Result carries a run's identity, final state, and everything it produced.
// On failure the flag store still holds every flag committed by the stages
// that completed before the failing one.
type Result struct {
	RunID         string
	Status        Status
	Flags         *flags.Store
	Decomposition *ica.Decomposition
	BundleDir     string
}

// Orchestrator owns the stage sequence of one or more runs. Runs execute
// strictly sequentially; the state-directory lock rejects a second writer.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	channels *channels.Detector
	epochs   *epochs.Detector
	ica      *ica.Stage
}

// New constructs an Orchestrator. A nil logger disables logging.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		channels: channels.NewDetector(cfg.Channels, logger),
		epochs:   epochs.NewDetector(cfg.Epochs, logger),
		ica:      ica.NewStage(cfg.ICA, logger),
	}
}

// Run executes the full stage sequence on rec. The recording's sample
// matrix is never modified; the only mutation is the annotation list grown
// during persistence. The returned Result is non-nil even on failure so
// callers can inspect the flags accumulated before the failing stage.
func (o *Orchestrator) Run(ctx context.Context, rec *signal.Recording) (*Result, error) {
	runID := uuid.NewString()
	ctx = faults.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	result := &Result{
		RunID:  runID,
		Status: StatusInit,
		Flags:  flags.NewStore(),
	}

	if err := rec.Validate(); err != nil {
		result.Status = StatusFailed
		return result, err
	}

	if err := o.cfg.EnsureDirectories(); err != nil {
		result.Status = StatusFailed
		return result, faults.Wrap(faults.ErrPersistence, "pipeline", "prepare state dir", "", err)
	}

	lock := flock.New(filepath.Join(o.cfg.Paths.StateDir, "lossless.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		result.Status = StatusFailed
		return result, faults.Wrap(faults.ErrPersistence, "pipeline", "lock state dir", "", err)
	}
	if !locked {
		result.Status = StatusFailed
		return result, faults.Wrap(faults.ErrPersistence, "pipeline", "lock state dir",
			"another run holds the state directory", nil)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := state.Open(o.cfg)
	if err != nil {
		result.Status = StatusFailed
		return result, err
	}
	defer store.Close()

	started := time.Now().UTC()
	if err := store.CreateRun(ctx, runID, string(StatusInit)); err != nil {
		result.Status = StatusFailed
		return result, err
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("channels", len(rec.Channels())),
		logging.Int("samples", rec.Samples()),
		logging.Float64("sample_rate", rec.SampleRate()))

	if err := o.runStage(ctx, store, result, channels.StageName, StatusChannelsDone,
		func(stageCtx context.Context) ([]flags.Flag, error) {
			return o.channels.Detect(stageCtx, rec, nil)
		}); err != nil {
		return o.fail(ctx, store, result, err)
	}

	if err := o.runStage(ctx, store, result, epochs.StageName, StatusEpochsDone,
		func(stageCtx context.Context) ([]flags.Flag, error) {
			return o.epochs.Detect(stageCtx, rec, result.Flags.ChannelNames())
		}); err != nil {
		return o.fail(ctx, store, result, err)
	}

	if err := o.runStage(ctx, store, result, ica.StageName, StatusICADone,
		func(stageCtx context.Context) ([]flags.Flag, error) {
			return o.runICA(stageCtx, rec, result)
		}); err != nil {
		return o.fail(ctx, store, result, err)
	}

	bundleDir, err := o.persist(ctx, store, rec, result, started)
	if err != nil {
		return o.fail(ctx, store, result, err)
	}
	result.BundleDir = bundleDir
	result.Status = StatusPersisted

	if err := store.FinishRun(ctx, runID, string(StatusPersisted), nil); err != nil {
		result.Status = StatusFailed
		return result, err
	}

	logger.Info("run persisted",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("flag_count", result.Flags.Len()),
		logging.String("bundle_dir", bundleDir))
	return result, nil
}

// runStage executes one detection stage, committing its buffered flags to
// both the audit store and the shared flag store only on success.
func (o *Orchestrator) runStage(ctx context.Context, store *state.Store, result *Result, name string, done Status, fn func(context.Context) ([]flags.Flag, error)) error {
	select {
	case <-ctx.Done():
		// No mid-stage cancellation; a run aborts only between stages.
		return fmt.Errorf("run aborted before stage %s: %w", name, ctx.Err())
	default:
	}
	stageCtx := faults.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, o.logger)

	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	fs, err := fn(stageCtx)
	if err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, faults.Classify(err).Kind),
			logging.Error(err))
		return err
	}

	if err := store.CommitStage(stageCtx, result.RunID, name, string(done), fs); err != nil {
		return err
	}
	for _, f := range fs {
		result.Flags.Record(f)
	}
	result.Status = done

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("flag_count", len(fs)),
		logging.String("next_status", string(done)))
	return nil
}

// runICA fits the decomposition on the channel- and epoch-masked recording
// and labels its components. Under best-effort configuration a convergence
// failure yields zero component flags instead of failing the run.
func (o *Orchestrator) runICA(ctx context.Context, rec *signal.Recording, result *Result) ([]flags.Flag, error) {
	masked, err := flaggedSampleRanges(result.Flags)
	if err != nil {
		return nil, err
	}

	dec, err := o.ica.Fit(ctx, rec, result.Flags.ChannelNames(), masked)
	if err != nil {
		if o.cfg.ICA.BestEffort && errors.Is(err, faults.ErrConvergence) {
			logging.WithContext(ctx, o.logger).Warn("decomposition did not converge, continuing without component flags",
				logging.String(logging.FieldEventType, "ica_best_effort"),
				logging.Error(err))
			return nil, nil
		}
		return nil, err
	}
	result.Decomposition = dec
	return o.ica.LabelComponents(dec, rec), nil
}

// persist materializes annotations on the recording and writes the bundle.
func (o *Orchestrator) persist(ctx context.Context, store *state.Store, rec *signal.Recording, result *Result, started time.Time) (string, error) {
	stageCtx := faults.WithStage(ctx, state.StageName)

	if err := result.Flags.ToAnnotations(rec); err != nil {
		return "", err
	}

	stages, err := store.StageRecords(stageCtx, result.RunID)
	if err != nil {
		return "", err
	}
	stageReports := make([]state.StageReport, len(stages))
	for i, s := range stages {
		stageReports[i] = state.StageReport{
			Stage:       s.Stage,
			CompletedAt: s.CompletedAt.Format(time.RFC3339Nano),
			FlagCount:   s.FlagCount,
		}
	}

	bundle := state.Bundle{
		Annotations: rec.Annotations(),
		Audit: state.AuditReport{
			RunID:          result.RunID,
			Status:         string(StatusPersisted),
			StartedAt:      started.Format(time.RFC3339Nano),
			FinishedAt:     time.Now().UTC().Format(time.RFC3339Nano),
			SignalChecksum: signalChecksum(rec),
			Stages:         stageReports,
			Flags:          state.FlagRecords(result.Flags.Snapshot()),
		},
	}
	if dec := result.Decomposition; dec != nil {
		bundle.Decomposition = &state.DecompositionReport{
			Components: dec.Components(),
			Iterations: dec.Iterations(),
			Seed:       dec.Seed(),
			Channels:   dec.ChannelNames(),
		}
	}
	return state.WriteBundle(o.cfg.Paths.StateDir, result.RunID, bundle)
}

// fail closes the run row in its terminal failed state. Flags committed by
// completed stages stay in both stores.
func (o *Orchestrator) fail(ctx context.Context, store *state.Store, result *Result, runErr error) (*Result, error) {
	result.Status = StatusFailed
	details := faults.Classify(runErr)
	if err := store.FinishRun(ctx, result.RunID, string(StatusFailed), &details); err != nil {
		logging.WithContext(ctx, o.logger).Error("failed to persist run failure", logging.Error(err))
	}
	return result, runErr
}

// flaggedSampleRanges converts epoch-kind flags back into sample ranges for
// the decomposition mask.
func flaggedSampleRanges(store *flags.Store) ([][2]int, error) {
	var ranges [][2]int
	for _, f := range store.Of(flags.KindEpoch) {
		for _, id := range f.IDs() {
			start, end, err := flags.ParseEpochID(id)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, [2]int{start, end})
		}
	}
	return ranges, nil
}

// signalChecksum hashes the raw sample matrix so audits can prove the run
// never altered it.
func signalChecksum(rec *signal.Recording) string {
	h := sha256.New()
	var buf [8]byte
	data := rec.Snapshot().RawMatrix().Data
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
