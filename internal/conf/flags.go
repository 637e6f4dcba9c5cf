package conf

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/ambient-go/internal/errors"
)

// flagKeyAnnotation marks a command line flag with the config key it
// overrides.
const flagKeyAnnotation = "ambient_config_key"

// AnnotateFlag records that the flag overrides the given config key. The
// binding itself happens in BindFlags so that commands sharing a key do not
// overwrite each other's bindings.
func AnnotateFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, flagKeyAnnotation, []string{key})
}

// BindFlags binds every annotated flag in the set to its config key. Only
// flags set on the command line take precedence over the config file.
func BindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[flagKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := viper.BindPFlag(keys[0], f); err != nil {
			bindErr = errors.New(err).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				Context("flag", f.Name).
				Build()
		}
	})
	return bindErr
}
