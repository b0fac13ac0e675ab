// Package config loads pool settings for the forkjoin command from flags,
// FORKJOIN_* environment variables and an optional config file.
package config

import (
	"errors"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
	"github.com/vnykmshr/forkjoin/pkg/metrics"
	"github.com/vnykmshr/forkjoin/pkg/queue"
)

// EnvPrefix prefixes environment overrides, e.g. FORKJOIN_PARALLELISM.
const EnvPrefix = "FORKJOIN"

// Config is the command's view of a pool configuration.
type Config struct {
	Name          string `mapstructure:"name"`
	Parallelism   int    `mapstructure:"parallelism"`
	DequeCapacity int    `mapstructure:"deque_capacity"`
	InletCapacity int    `mapstructure:"inlet_capacity"`
	InletStrategy string `mapstructure:"inlet_strategy"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// MetricsAddr enables Prometheus metrics and serves them on this
	// address when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	defaults := forkjoin.DefaultConfig()
	return &Config{
		Name:          "forkjoin",
		Parallelism:   defaults.Parallelism,
		DequeCapacity: defaults.InitialDequeCapacity,
		InletCapacity: defaults.InletCapacity,
		InletStrategy: defaults.InletStrategy.String(),
		LogLevel:      "info",
	}
}

// SetDefaults registers every key with v so that environment variables
// are honoured even for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("name", d.Name)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("deque_capacity", d.DequeCapacity)
	v.SetDefault("inlet_capacity", d.InletCapacity)
	v.SetDefault("inlet_strategy", d.InletStrategy)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", d.LogJSON)
	v.SetDefault("metrics_addr", d.MetricsAddr)
}

// BindFlags binds the persistent command flags to their config keys.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"parallelism":    "parallelism",
		"inlet-capacity": "inlet_capacity",
		"inlet-strategy": "inlet_strategy",
		"log-level":      "log_level",
		"log-json":       "log_json",
		"metrics-addr":   "metrics_addr",
	}
	for flag, key := range bindings {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads file (if set, otherwise forkjoin.yaml in the working
// directory when present) and the environment into a Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("forkjoin")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Logger builds the command logger writing to w.
func (c *Config) Logger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "forkjoin",
		Level:      hclog.LevelFromString(c.LogLevel),
		Output:     w,
		JSONFormat: c.LogJSON,
	})
}

// PoolConfig converts c into a forkjoin.Config using logger.
func (c *Config) PoolConfig(logger hclog.Logger) (forkjoin.Config, error) {
	strategy, err := queue.ParseStrategy(c.InletStrategy)
	if err != nil {
		return forkjoin.Config{}, err
	}

	pc := forkjoin.DefaultConfig()
	pc.Name = c.Name
	pc.Parallelism = c.Parallelism
	pc.InitialDequeCapacity = c.DequeCapacity
	pc.InletCapacity = c.InletCapacity
	pc.InletStrategy = strategy
	pc.Logger = logger
	if c.MetricsAddr != "" {
		pc.Metrics = metrics.DefaultConfig()
	}
	return pc, nil
}
