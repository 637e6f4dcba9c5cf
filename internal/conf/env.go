// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AMBIENT_DEBUG", validateEnvBool},

		{"audio.source", "AMBIENT_AUDIO_SOURCE", nil},
		{"audio.capture.mintime", "AMBIENT_CAPTURE_MINTIME", validateEnvSeconds},
		{"audio.capture.maxtime", "AMBIENT_CAPTURE_MAXTIME", validateEnvSeconds},
		{"audio.export.enabled", "AMBIENT_EXPORT_ENABLED", validateEnvBool},
		{"audio.export.path", "AMBIENT_EXPORT_PATH", nil},

		{"model.embeddingpath", "AMBIENT_MODEL_EMBEDDING", validateEnvPath},
		{"model.pcapath", "AMBIENT_MODEL_PCA", validateEnvPath},
		{"model.classifierpath", "AMBIENT_MODEL_CLASSIFIER", validateEnvPath},
		{"model.labelspath", "AMBIENT_MODEL_LABELS", validateEnvPath},
		{"model.threads", "AMBIENT_MODEL_THREADS", validateEnvThreads},

		{"prediction.count", "AMBIENT_PREDICTION_COUNT", validateEnvCount},
		{"prediction.threshold", "AMBIENT_PREDICTION_THRESHOLD", validateEnvThreshold},

		{"mqtt.enabled", "AMBIENT_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "AMBIENT_MQTT_BROKER", nil},
		{"mqtt.username", "AMBIENT_MQTT_USERNAME", nil},
		{"mqtt.password", "AMBIENT_MQTT_PASSWORD", nil},

		{"sentry.enabled", "AMBIENT_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "AMBIENT_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvSeconds(value string) error {
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid duration in seconds: %w", err)
	}
	if secs <= 0 {
		return fmt.Errorf("must be positive, got %g", secs)
	}
	return nil
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid thread count: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("thread count cannot be negative, got %d", threads)
	}
	return nil
}

func validateEnvCount(value string) error {
	count, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid count: %w", err)
	}
	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if threshold < 0.0 || threshold >= 1.0 {
		return fmt.Errorf("threshold must be in [0, 1), got %g", threshold)
	}
	return nil
}

func validateEnvPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path is empty")
	}
	if _, err := os.Stat(value); os.IsNotExist(err) {
		return fmt.Errorf("warning: file does not exist: %s", value)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
