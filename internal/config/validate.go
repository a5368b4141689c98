package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateChannels(); err != nil {
		return err
	}
	if err := c.validateEpochs(); err != nil {
		return err
	}
	if err := c.validateICA(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateChannels() error {
	if c.Channels.NeighborCount < 1 {
		return errors.New("channels.neighbor_count must be at least 1")
	}
	if c.Channels.Sensitivity <= 0 {
		return errors.New("channels.channel_sensitivity must be positive")
	}
	if c.Channels.Resamples < 1 {
		return errors.New("channels.resamples must be at least 1")
	}
	if c.Channels.WindowSeconds <= 0 {
		return errors.New("channels.window_s must be positive")
	}
	if c.Channels.FlagFraction <= 0 || c.Channels.FlagFraction > 1 {
		return errors.New("channels.flag_fraction must be in (0, 1]")
	}
	if c.Channels.CorrelationFloor < 0 || c.Channels.CorrelationFloor > 1 {
		return errors.New("channels.correlation_floor must be in [0, 1]")
	}
	if c.Channels.BridgeTrim < 0 || c.Channels.BridgeTrim >= 1 {
		return errors.New("channels.bridge_trim must be in [0, 1)")
	}
	if c.Channels.BridgeZ <= 0 {
		return errors.New("channels.bridge_z must be positive")
	}
	return nil
}

func (c *Config) validateEpochs() error {
	if c.Epochs.LengthSeconds <= 0 {
		return errors.New("epochs.epoch_length_s must be positive")
	}
	if c.Epochs.Sensitivity <= 0 {
		return errors.New("epochs.epoch_sensitivity must be positive")
	}
	if c.Epochs.FlagFraction <= 0 || c.Epochs.FlagFraction > 1 {
		return errors.New("epochs.flag_fraction must be in (0, 1]")
	}
	if c.Epochs.MinGapMS < 0 {
		return errors.New("epochs.min_gap_ms must not be negative")
	}
	return nil
}

func (c *Config) validateICA() error {
	if c.ICA.MaxIter < 1 {
		return errors.New("ica.ica_max_iter must be at least 1")
	}
	if c.ICA.Tolerance <= 0 {
		return errors.New("ica.tolerance must be positive")
	}
	if c.ICA.ArtifactCorrelationThreshold <= 0 || c.ICA.ArtifactCorrelationThreshold > 1 {
		return errors.New("ica.artifact_correlation_threshold must be in (0, 1]")
	}
	if c.ICA.KurtosisThreshold <= 0 {
		return errors.New("ica.kurtosis_threshold must be positive")
	}
	if c.ICA.HFRatioThreshold <= 0 || c.ICA.HFRatioThreshold > 1 {
		return errors.New("ica.hf_ratio_threshold must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
