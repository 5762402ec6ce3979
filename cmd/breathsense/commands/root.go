package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumora-health/breathsense/cmd/breathsense/internal/config"
)

var (
	// Global flags
	verbose bool

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "breathsense",
	Short: "Acoustic breathing detection from the command line",
	Long: `breathsense - real-time breathing detection on audio streams.

The detector reads mono audio (WAV file, raw PCM on stdin, or an RTP/L16
stream), tracks the breathing state and rate, and records detected events
into a local session database. A websocket monitor endpoint can broadcast
live results to dashboards.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/breathsense/
  Linux:   ~/.config/breathsense/
  Windows: %AppData%/breathsense/

Use 'breathsense config' to manage contexts and service configurations.

Examples:
  # Create a context and configure storage
  breathsense config add-context bedside
  breathsense config set bedside storage s3_bucket my-archive

  # Detect on a recording
  breathsense run --file night.wav

  # Detect on a live RTP stream with the monitor enabled
  breathsense config use-context bedside
  breathsense run --rtp :5004 --monitor 127.0.0.1:8799

  # Inspect and export sessions
  breathsense sessions list
  breathsense sessions export 7c9e6679-...`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		// Store error for deferred reporting — commands that need config
		// will get a clear error via GetConfig(). This avoids failing
		// non-config commands like 'breathsense version'.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
// Returns an error if the config could not be loaded (e.g., HOME not set).
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		// Try loading again (e.g., dir was created since init).
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
