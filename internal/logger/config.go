package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `mapstructure:"default_level" yaml:"default_level" json:"default_level"` // default log level for all modules
	Timezone     string            `mapstructure:"timezone" yaml:"timezone" json:"timezone"`                // "Local", "UTC", or IANA timezone name
	Console      *ConsoleOutput    `mapstructure:"console" yaml:"console" json:"console"`                   // console output configuration
	FileOutput   *FileOutput       `mapstructure:"file_output" yaml:"file_output" json:"file_output"`       // file output configuration
	ModuleLevels map[string]string `mapstructure:"module_levels" yaml:"module_levels" json:"module_levels"` // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output uses human-readable text without timestamps; journald or
// docker add their own.
type ConsoleOutput struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Level   string `mapstructure:"level" yaml:"level" json:"level"`
}

// FileOutput represents file logging configuration.
// File output uses JSON with RFC3339 timestamps.
type FileOutput struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path            string `mapstructure:"path" yaml:"path" json:"path"`
	MaxSize         int    `mapstructure:"max_size" yaml:"max_size" json:"max_size"`                            // MB before rotation
	MaxAge          int    `mapstructure:"max_age" yaml:"max_age" json:"max_age"`                               // days to keep rotated logs (0 = no limit)
	MaxRotatedFiles int    `mapstructure:"max_rotated_files" yaml:"max_rotated_files" json:"max_rotated_files"` // rotated files to keep (0 = no limit)
	Compress        bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
	Level           string `mapstructure:"level" yaml:"level" json:"level"`
}

// Default values for logging configuration.
const (
	DefaultLogLevel        = "info"
	DefaultLogPath         = "logs/ambient.log"
	DefaultMaxSize         = 100
	DefaultMaxAge          = 30
	DefaultMaxRotatedFiles = 10
	DefaultCompressLogs    = false
	DefaultConsoleEnabled  = true
	DefaultFileEnabled     = false
)

// applyConfigDefaults fills nil configuration sections.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{
			Enabled:         DefaultFileEnabled,
			Path:            DefaultLogPath,
			Level:           cfg.DefaultLevel,
			MaxSize:         DefaultMaxSize,
			MaxAge:          DefaultMaxAge,
			MaxRotatedFiles: DefaultMaxRotatedFiles,
			Compress:        DefaultCompressLogs,
		}
	}
	if cfg.FileOutput.Path == "" {
		cfg.FileOutput.Path = DefaultLogPath
	}
	if cfg.FileOutput.MaxSize <= 0 {
		cfg.FileOutput.MaxSize = DefaultMaxSize
	}

	if cfg.ModuleLevels == nil {
		cfg.ModuleLevels = make(map[string]string)
	}
}
