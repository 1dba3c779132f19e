// Package config loads daemon configuration from a YAML file, HAZARD_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HAZARD_MQTT_BROKER.
const EnvPrefix = "HAZARD"

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTP configures a gin listener.
type HTTP struct {
	Addr string `mapstructure:"addr"`
}

// newViper returns a viper instance with env overrides enabled and, when
// path is non-empty, the given config file read in.
func newViper(path string, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	return v, nil
}

// bindFlags binds each named flag to its config key. Flags that were not set
// on the command line do not override the file or environment.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	if fs == nil {
		return nil
	}
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// configPath returns the --config flag value, if any.
func configPath(fs *pflag.FlagSet) string {
	if fs == nil {
		return ""
	}
	p, err := fs.GetString("config")
	if err != nil {
		return ""
	}
	return p
}

func validateLog(l Log) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", l.Level)
	}
	switch l.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", l.Format)
	}
	return nil
}

var errNoNode = errors.New("node is required")
