// conf/validate.go

package conf

import (
	"fmt"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. All problems are
// collected before returning.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateFeatureSettings(&s.Features) },
		func(s *Settings) error { return validateModelSettings(&s.Model) },
		func(s *Settings) error { return validatePredictionSettings(&s.Prediction) },
		func(s *Settings) error { return validateHistorySettings(&s.History) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error { return validateWebServerSettings(&s.WebServer) },
		func(s *Settings) error { return validateSentrySettings(&s.Sentry) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// joinErrs folds a list of messages into a single error
func joinErrs(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %s", section, strings.Join(errs, ", "))
}

// validateAudioSettings checks the capture watermarks. A minimum above the
// maximum is rejected rather than clamped.
func validateAudioSettings(settings *AudioSettings) error {
	var errs []string

	if settings.ChunkSamples <= 0 {
		errs = append(errs, fmt.Sprintf("chunk samples must be positive, got %d", settings.ChunkSamples))
	}
	if settings.Capture.MinTime <= 0 {
		errs = append(errs, fmt.Sprintf("capture min time must be positive, got %g", settings.Capture.MinTime))
	}
	if settings.Capture.MaxTime <= 0 {
		errs = append(errs, fmt.Sprintf("capture max time must be positive, got %g", settings.Capture.MaxTime))
	}
	if settings.Capture.MinTime > settings.Capture.MaxTime {
		errs = append(errs, fmt.Sprintf("capture min time %gs exceeds max time %gs",
			settings.Capture.MinTime, settings.Capture.MaxTime))
	}
	if settings.Export.Enabled && settings.Export.Path == "" {
		errs = append(errs, "export path is required when export is enabled")
	}

	return joinErrs("audio", errs)
}

func validateFeatureSettings(settings *FeatureSettings) error {
	var errs []string

	if settings.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("sample rate must be positive, got %d", settings.SampleRate))
	}
	if settings.StftWindowSeconds <= 0 || settings.StftHopSeconds <= 0 {
		errs = append(errs, "stft window and hop must be positive")
	}
	if settings.ExampleWindowSeconds <= 0 || settings.ExampleHopSeconds <= 0 {
		errs = append(errs, "example window and hop must be positive")
	}
	if settings.MelBands <= 0 {
		errs = append(errs, fmt.Sprintf("mel bands must be positive, got %d", settings.MelBands))
	}
	if settings.LogOffset <= 0 {
		errs = append(errs, fmt.Sprintf("log offset must be positive, got %g", settings.LogOffset))
	}

	nyquist := float64(settings.SampleRate) / 2
	switch {
	case settings.MelMinHz < 0:
		errs = append(errs, fmt.Sprintf("mel lower edge must be >= 0, got %g", settings.MelMinHz))
	case settings.MelMinHz >= settings.MelMaxHz:
		errs = append(errs, fmt.Sprintf("mel lower edge %g must be below upper edge %g", settings.MelMinHz, settings.MelMaxHz))
	case settings.SampleRate > 0 && settings.MelMaxHz > nyquist:
		errs = append(errs, fmt.Sprintf("mel upper edge %g exceeds nyquist %g", settings.MelMaxHz, nyquist))
	}

	return joinErrs("features", errs)
}

func validateModelSettings(settings *ModelSettings) error {
	var errs []string

	if settings.EmbeddingPath == "" {
		errs = append(errs, "embedding model path is required")
	}
	if settings.ClassifierPath == "" {
		errs = append(errs, "classifier model path is required")
	}
	if settings.Threads < 0 {
		errs = append(errs, fmt.Sprintf("threads cannot be negative, got %d", settings.Threads))
	}

	return joinErrs("model", errs)
}

func validatePredictionSettings(settings *PredictionSettings) error {
	var errs []string

	if settings.MaxFrames <= 0 {
		errs = append(errs, fmt.Sprintf("max frames must be positive, got %d", settings.MaxFrames))
	}
	if settings.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Sprintf("embedding dim must be positive, got %d", settings.EmbeddingDim))
	}
	if settings.Count < 1 {
		errs = append(errs, fmt.Sprintf("count limit must be at least 1, got %d", settings.Count))
	}
	if settings.Threshold < 0 || settings.Threshold >= 1 {
		errs = append(errs, fmt.Sprintf("hit threshold must be in [0, 1), got %g", settings.Threshold))
	}

	return joinErrs("prediction", errs)
}

func validateHistorySettings(settings *HistorySettings) error {
	if settings.Size < 1 {
		return fmt.Errorf("history settings errors: size must be at least 1, got %d", settings.Size)
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}

	var errs []string
	if settings.Broker == "" {
		errs = append(errs, "broker is required when MQTT is enabled")
	}
	if settings.Topic == "" {
		errs = append(errs, "topic is required when MQTT is enabled")
	}
	if settings.Cooldown < 0 {
		errs = append(errs, "cooldown cannot be negative")
	}

	return joinErrs("mqtt", errs)
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if settings.Enabled && settings.Listen == "" {
		return fmt.Errorf("webserver settings errors: listen address is required")
	}
	return nil
}

func validateSentrySettings(settings *SentrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return fmt.Errorf("sentry settings errors: dsn is required when sentry is enabled")
	}
	return nil
}
