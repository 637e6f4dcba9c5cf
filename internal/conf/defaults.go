// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/ambient-go/internal/logger"
)

// Default pipeline parameters.
const (
	DefaultSampleRate           = 16000
	DefaultChunkSamples         = 16000
	DefaultCaptureSeconds       = 5.0
	DefaultStftWindowSeconds    = 0.025
	DefaultStftHopSeconds       = 0.010
	DefaultMelBands             = 64
	DefaultMelMinHz             = 125.0
	DefaultMelMaxHz             = 7500.0
	DefaultLogOffset            = 0.01
	DefaultExampleWindowSeconds = 0.96
	DefaultExampleHopSeconds    = 0.96
	DefaultMaxFrames            = 300
	DefaultEmbeddingDim         = 128
	DefaultCountLimit           = 3
	DefaultHitThreshold         = 0.1
	DefaultHistorySize          = 10
)

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "ambient-go")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	viper.SetDefault("logging.file_output.compress", logger.DefaultCompressLogs)

	viper.SetDefault("audio.source", "")
	viper.SetDefault("audio.chunksamples", DefaultChunkSamples)
	viper.SetDefault("audio.capture.mintime", DefaultCaptureSeconds)
	viper.SetDefault("audio.capture.maxtime", DefaultCaptureSeconds)
	viper.SetDefault("audio.export.enabled", false)
	viper.SetDefault("audio.export.path", "recordings/")

	viper.SetDefault("features.samplerate", DefaultSampleRate)
	viper.SetDefault("features.stftwindowseconds", DefaultStftWindowSeconds)
	viper.SetDefault("features.stfthopseconds", DefaultStftHopSeconds)
	viper.SetDefault("features.melbands", DefaultMelBands)
	viper.SetDefault("features.melminhz", DefaultMelMinHz)
	viper.SetDefault("features.melmaxhz", DefaultMelMaxHz)
	viper.SetDefault("features.logoffset", DefaultLogOffset)
	viper.SetDefault("features.examplewindowseconds", DefaultExampleWindowSeconds)
	viper.SetDefault("features.examplehopseconds", DefaultExampleHopSeconds)

	viper.SetDefault("model.embeddingpath", "models/vggish.tflite")
	viper.SetDefault("model.pcapath", "models/vggish_pca_params.npz")
	viper.SetDefault("model.classifierpath", "models/classifier.tflite")
	viper.SetDefault("model.labelspath", "models/class_labels_indices.csv")
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.usexnnpack", false)

	viper.SetDefault("prediction.maxframes", DefaultMaxFrames)
	viper.SetDefault("prediction.embeddingdim", DefaultEmbeddingDim)
	viper.SetDefault("prediction.count", DefaultCountLimit)
	viper.SetDefault("prediction.threshold", DefaultHitThreshold)

	viper.SetDefault("history.size", DefaultHistorySize)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "ambient/predictions")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.cooldown", time.Duration(0))

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
