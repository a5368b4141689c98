package testsupport

import (
	"path/filepath"
	"testing"

	"lossless/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	// Generous budget so decomposition tests never hinge on a tight cap.
	cfg.ICA.MaxIter = 500

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithNeighborCount overrides the noisy-channel neighbor count.
func WithNeighborCount(n int) ConfigOption {
	return func(c *config.Config) {
		c.Channels.NeighborCount = n
	}
}

// WithChannelSensitivity overrides the noisy-channel sensitivity.
func WithChannelSensitivity(s float64) ConfigOption {
	return func(c *config.Config) {
		c.Channels.Sensitivity = s
	}
}

// WithBestEffortICA marks ICA convergence failures as non-fatal.
func WithBestEffortICA() ConfigOption {
	return func(c *config.Config) {
		c.ICA.BestEffort = true
	}
}
