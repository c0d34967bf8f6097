package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const keyAnnotation = "config_key"

// MapFlag marks a flag as the command line source of a config key. Several
// commands may map flags to the same key; only the flags of the command being
// executed are bound, see BindFlags.
func MapFlag(flags *pflag.FlagSet, key, name string) {
	flags.SetAnnotation(name, keyAnnotation, []string{key})
}

// BindFlags binds every mapped flag of the set to its config key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[keyAnnotation]
		if !ok || len(keys) == 0 || err != nil {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}
