package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lossless/internal/faults"
	"lossless/internal/flags"
	"lossless/internal/signal"
)

// DecompositionReport summarizes the ICA fit for the bundle. Nil when the
// run finished without a usable decomposition.
type DecompositionReport struct {
	Components int      `json:"components"`
	Iterations int      `json:"iterations"`
	Seed       uint64   `json:"seed"`
	Channels   []string `json:"channels"`
}

// FlagRecord is the serialized form of one committed flag.
type FlagRecord struct {
	Kind  string   `json:"kind"`
	Label string   `json:"label"`
	IDs   []string `json:"ids"`
	Score float64  `json:"score"`
}

// StageReport is the serialized form of one stage completion.
type StageReport struct {
	Stage       string `json:"stage"`
	CompletedAt string `json:"completed_at"`
	FlagCount   int    `json:"flag_count"`
}

// AuditReport ties the run identity, outcome, stages, and flags together.
type AuditReport struct {
	RunID          string        `json:"run_id"`
	Status         string        `json:"status"`
	StartedAt      string        `json:"started_at"`
	FinishedAt     string        `json:"finished_at,omitempty"`
	FailureKind    string        `json:"failure_kind,omitempty"`
	FailureMessage string        `json:"failure_message,omitempty"`
	SignalChecksum string        `json:"signal_checksum,omitempty"`
	Stages         []StageReport `json:"stages"`
	Flags          []FlagRecord  `json:"flags"`
}

// Bundle is everything WriteBundle renders.
type Bundle struct {
	Annotations   []signal.Annotation
	Decomposition *DecompositionReport
	Audit         AuditReport
}

// FlagRecords converts committed flags to their serialized form.
func FlagRecords(fs []flags.Flag) []FlagRecord {
	out := make([]FlagRecord, len(fs))
	for i, f := range fs {
		out[i] = FlagRecord{
			Kind:  string(f.Kind()),
			Label: f.Label(),
			IDs:   f.IDs(),
			Score: f.Score(),
		}
	}
	return out
}

// WriteBundle renders annotations.json, ica.json, and audit.json into
// <stateDir>/runs/<runID>. The files land in a temp directory that is
// renamed into place, so a partially written bundle never becomes visible.
func WriteBundle(stateDir, runID string, bundle Bundle) (string, error) {
	runsDir := filepath.Join(stateDir, "runs")
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrPersistence, StageName, "write bundle", "create runs directory", err)
	}

	dest := filepath.Join(runsDir, runID)
	tmp := dest + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return "", faults.Wrap(faults.ErrPersistence, StageName, "write bundle", "clear temp directory", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrPersistence, StageName, "write bundle", "create temp directory", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }

	annotations := bundle.Annotations
	if annotations == nil {
		annotations = []signal.Annotation{}
	}

	files := []struct {
		name    string
		payload any
	}{
		{"annotations.json", annotations},
		{"ica.json", bundle.Decomposition},
		{"audit.json", bundle.Audit},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(tmp, f.name), f.payload); err != nil {
			cleanup()
			return "", faults.Wrap(faults.ErrPersistence, StageName, "write bundle", f.name, err)
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		cleanup()
		return "", faults.Wrap(faults.ErrPersistence, StageName, "write bundle", "clear previous bundle", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		cleanup()
		return "", faults.Wrap(faults.ErrPersistence, StageName, "write bundle", "rename into place", err)
	}
	return dest, nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
