package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Channels contains configuration for the noisy-channel detector.
type Channels struct {
	// NeighborCount is the number of spatial neighbors used to predict a
	// channel's signal in each consensus resample.
	NeighborCount int `toml:"neighbor_count"`
	// Sensitivity is the number of robust deviations below the cross-channel
	// correlation distribution at which a window counts against a channel.
	Sensitivity float64 `toml:"channel_sensitivity"`
	// Resamples is the number of randomized neighbor subsets drawn per window.
	Resamples int `toml:"resamples"`
	// WindowSeconds is the correlation window length.
	WindowSeconds float64 `toml:"window_s"`
	// FlagFraction is the fraction of bad windows beyond which a channel is flagged.
	FlagFraction float64 `toml:"flag_fraction"`
	// CorrelationFloor is the absolute correlation below which a window can
	// count as bad at all. Guards the robust test on contamination-free data.
	CorrelationFloor float64 `toml:"correlation_floor"`
	// Seed drives the neighbor resampling generator.
	Seed uint64 `toml:"seed"`
	// BridgeTrim is the proportion trimmed from each tail when testing for
	// bridged channels; BridgeZ the scaled-deviation threshold of that test.
	BridgeTrim float64 `toml:"bridge_trim"`
	BridgeZ    float64 `toml:"bridge_z"`
}

// Epochs contains configuration for the noisy-epoch detector.
type Epochs struct {
	// LengthSeconds is the fixed epoch window length.
	LengthSeconds float64 `toml:"epoch_length_s"`
	// Sensitivity is the robust-deviation threshold of the amplitude tests.
	Sensitivity float64 `toml:"epoch_sensitivity"`
	// FlagFraction is the fraction of implicated channels beyond which a
	// window is flagged.
	FlagFraction float64 `toml:"flag_fraction"`
	// MinGapMS flags clean gaps shorter than this between flagged windows.
	MinGapMS float64 `toml:"min_gap_ms"`
}

// ICA contains configuration for the decomposition and component flagging.
type ICA struct {
	MaxIter   int     `toml:"ica_max_iter"`
	Seed      uint64  `toml:"ica_seed"`
	Tolerance float64 `toml:"tolerance"`
	// ArtifactCorrelationThreshold is the absolute correlation with a
	// reference artifact channel above which a component is flagged.
	ArtifactCorrelationThreshold float64 `toml:"artifact_correlation_threshold"`
	// KurtosisThreshold and HFRatioThreshold drive the signature-based
	// muscular/other classification when no reference channel implicates
	// a component.
	KurtosisThreshold float64 `toml:"kurtosis_threshold"`
	HFRatioThreshold  float64 `toml:"hf_ratio_threshold"`
	// BestEffort persists channel and epoch flags even when the
	// decomposition fails to converge.
	BestEffort bool `toml:"best_effort"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the QC pipeline.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Channels: noisy-channel detection (neighbor consensus + bridging)
//   - Epochs: noisy-epoch detection and gap merging
//   - ICA: decomposition budget, seed, and component flagging thresholds
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Channels Channels `toml:"channels"`
	Epochs   Epochs   `toml:"epochs"`
	ICA      ICA      `toml:"ica"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lossless/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Unknown keys in the
// file are a load error.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: unknown keys:\n%s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// EnsureDirectories creates the state and log directories if absent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err = os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
