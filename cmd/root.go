package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/ambient-go/cmd/capture"
	"github.com/tphakala/ambient-go/cmd/devices"
	"github.com/tphakala/ambient-go/cmd/file"
	"github.com/tphakala/ambient-go/cmd/realtime"
	"github.com/tphakala/ambient-go/internal/buildinfo"
	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	// filled in by PersistentPreRunE before any subcommand runs
	settings := &conf.Settings{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ambient",
		Short:         "Ambient sound classifier",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, &configPath)

	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		capture.Command(settings),
		devices.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// cobra has merged the persistent flags into cmd.Flags() by now
		if err := conf.BindFlags(cmd.Flags()); err != nil {
			return err
		}
		conf.SetConfigFile(configPath)

		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded

		return initialize(settings, info)
	}

	return rootCmd
}

// initialize sets up the central logger and error reporting from loaded
// settings.
func initialize(settings *conf.Settings, info *buildinfo.Context) error {
	logCfg := settings.Logging
	if settings.Debug {
		logCfg.DefaultLevel = string(logger.LogLevelDebug)
		if logCfg.Console != nil {
			console := *logCfg.Console
			console.Level = logCfg.DefaultLevel
			logCfg.Console = &console
		}
	}

	cl, err := logger.NewCentralLogger(&logCfg)
	if err != nil {
		return errors.New(err).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Context("operation", "logger_setup").
			Build()
	}
	logger.SetGlobal(cl)

	log := cl.Module("main")
	log.Debug("settings loaded",
		logger.String("version", info.GetVersion()),
		logger.String("build_date", info.GetBuildDate()))

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, info.GetVersion()); err != nil {
			log.Warn("error reporting disabled", logger.Error(err))
		}
	}

	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configPath *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(configPath, "config", "", "Path to the config file (default: search standard locations)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.Float64P("threshold", "t", conf.DefaultHitThreshold, "Report classes scoring above this value")
	flags.IntP("count", "n", conf.DefaultCountLimit, "Maximum number of classes to report")

	conf.AnnotateFlag(flags, "debug", "debug")
	conf.AnnotateFlag(flags, "threshold", "prediction.threshold")
	conf.AnnotateFlag(flags, "count", "prediction.count")
}
