// Package conf provides configuration management for ambient-go.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for the application.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of the device, reported in published events
	}

	Logging logger.LoggingConfig `yaml:"logging"`

	Audio      AudioSettings
	Features   FeatureSettings
	Model      ModelSettings
	Prediction PredictionSettings
	History    HistorySettings
	MQTT       MQTTSettings
	WebServer  WebServerSettings
	Sentry     SentrySettings
}

// AudioSettings controls the audio source and the stream segmenter.
type AudioSettings struct {
	Source       string // capture device name, "" for default, "-" for raw PCM on stdin
	ChunkSamples int    // samples requested per device read
	Capture      CaptureSettings
	Export       ExportSettings
}

// CaptureSettings holds the segmenter watermarks in seconds.
type CaptureSettings struct {
	MinTime float64 // seconds of audio required before a hand-off
	MaxTime float64 // seconds of audio retained, oldest audio beyond this is dropped
}

// ExportSettings controls writing processed buffers to disk.
type ExportSettings struct {
	Enabled bool
	Path    string
}

// FeatureSettings holds the log-mel front-end parameters.
type FeatureSettings struct {
	SampleRate           int
	StftWindowSeconds    float64
	StftHopSeconds       float64
	MelBands             int
	MelMinHz             float64
	MelMaxHz             float64
	LogOffset            float64
	ExampleWindowSeconds float64
	ExampleHopSeconds    float64
}

// ModelSettings points at the model artifacts.
type ModelSettings struct {
	EmbeddingPath  string // embedding network, tflite
	PCAPath        string // whitening parameters, npz
	ClassifierPath string // sequence classifier, tflite
	LabelsPath     string // class index CSV
	Threads        int    // interpreter threads, 0 for all cores
	UseXNNPACK     bool   // use the XNNPACK delegate when available
}

// PredictionSettings controls sequence shaping and ranking.
type PredictionSettings struct {
	MaxFrames    int
	EmbeddingDim int
	Count        int     // top-K count limit
	Threshold    float64 // hit threshold, scores must be strictly above it
}

// HistorySettings controls the in-memory event history.
type HistorySettings struct {
	Size int
}

// MQTTSettings contains settings for MQTT integration.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	Username string
	Password string
	Cooldown time.Duration // per-label publish cooldown, 0 disables
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings contains settings for optional error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex

	// configFile overrides the search path when set
	configFile string

	// appFs is the filesystem used for config writes
	appFs = afero.NewOsFs()
)

// SetConfigFile makes Load read the given file instead of searching the
// default paths.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFile = path
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings, then reads the
// configuration file.
func initViper() error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it
func createDefaultConfig(dir string) error {
	configPath, err := writeDefaultConfig(appFs, dir)
	if err != nil {
		return err
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// writeDefaultConfig writes the embedded config.yaml into dir on fsys and
// returns the file path.
func writeDefaultConfig(fsys afero.Fs, dir string) (string, error) {
	configPath := filepath.Join(dir, "config.yaml")

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := afero.WriteFile(fsys, configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return "", errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "write_default_config").
			Build()
	}
	return configPath, nil
}

// getDefaultConfig returns the embedded default configuration
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// embedded at build time
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. The file is replaced
// atomically; comments in the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	return saveYAMLConfig(appFs, configPath, settings)
}

func saveYAMLConfig(fsys afero.Fs, configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := afero.TempFile(fsys, filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = fsys.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := fsys.Rename(tempFileName, configPath); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "replace_config").
			Build()
	}

	return nil
}
