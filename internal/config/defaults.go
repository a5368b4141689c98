package config

const (
	defaultStateDir = "~/.local/share/lossless/state"
	defaultLogDir   = "~/.local/share/lossless/logs"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultNeighborCount    = 8
	defaultChannelSens      = 3.0
	defaultResamples        = 25
	defaultWindowSeconds    = 1.0
	defaultFlagFraction     = 0.3
	defaultCorrelationFloor = 0.75
	defaultChannelSeed      = 435656
	defaultBridgeTrim       = 0.4
	defaultBridgeZ          = 6.0

	defaultEpochLengthSeconds = 1.0
	defaultEpochSens          = 3.0
	defaultEpochFlagFraction  = 0.2
	defaultMinGapMS           = 250.0

	defaultICAMaxIter          = 200
	defaultICASeed             = 97
	defaultICATolerance        = 1e-4
	defaultArtifactCorrelation = 0.8
	defaultKurtosisThreshold   = 5.0
	defaultHFRatioThreshold    = 0.65
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Channels: Channels{
			NeighborCount:    defaultNeighborCount,
			Sensitivity:      defaultChannelSens,
			Resamples:        defaultResamples,
			WindowSeconds:    defaultWindowSeconds,
			FlagFraction:     defaultFlagFraction,
			CorrelationFloor: defaultCorrelationFloor,
			Seed:             defaultChannelSeed,
			BridgeTrim:       defaultBridgeTrim,
			BridgeZ:          defaultBridgeZ,
		},
		Epochs: Epochs{
			LengthSeconds: defaultEpochLengthSeconds,
			Sensitivity:   defaultEpochSens,
			FlagFraction:  defaultEpochFlagFraction,
			MinGapMS:      defaultMinGapMS,
		},
		ICA: ICA{
			MaxIter:                      defaultICAMaxIter,
			Seed:                         defaultICASeed,
			Tolerance:                    defaultICATolerance,
			ArtifactCorrelationThreshold: defaultArtifactCorrelation,
			KurtosisThreshold:            defaultKurtosisThreshold,
			HFRatioThreshold:             defaultHFRatioThreshold,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
