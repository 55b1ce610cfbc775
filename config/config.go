package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SMDFU_PORT_NAME.
const EnvPrefix = "SMDFU"

// PortConfig selects and opens the serial port.
type PortConfig struct {
	Name   string        `mapstructure:"name"`
	Baud   int           `mapstructure:"baud"`
	Settle time.Duration `mapstructure:"settle"`
}

// DFUConfig tunes the transfer.
type DFUConfig struct {
	ChunkSize    int           `mapstructure:"chunkSize"`
	Retries      int           `mapstructure:"retries"`
	BaseAddress  uint32        `mapstructure:"baseAddress"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

// LumberjackConfig configures the rolling log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets log level and outputs.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// Config is the top-level configuration.
type Config struct {
	Port    PortConfig    `mapstructure:"port"`
	DFU     DFUConfig     `mapstructure:"dfu"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"port":         "port.name",
	"baudrate":     "port.baud",
	"chunk-size":   "dfu.chunkSize",
	"retries":      "dfu.retries",
	"base-address": "dfu.baseAddress",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"log-file":     "logging.file.filename",
}

// Load reads the configuration from defaults, an optional YAML/TOML/JSON
// file, SMDFU_* environment variables and flags, in increasing priority.
//
// If path is empty, SMDFU_CONFIG is consulted, then smdfu.{yaml,toml,json}
// in the working directory. A missing default file is not an error.
// flags may be nil; otherwise every flag named in the flag table is bound.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("smdfu")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Running without a config file is the common case.
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port.name", "")
	v.SetDefault("port.baud", 115200)
	v.SetDefault("port.settle", "100ms")

	v.SetDefault("dfu.chunkSize", 4096)
	v.SetDefault("dfu.retries", 3)
	v.SetDefault("dfu.baseAddress", 0)
	v.SetDefault("dfu.pollInterval", "10ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", false)
}

// Validate checks the values a run cannot do without.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Port.Name) == "" {
		errs = append(errs, errors.New("port.name is required"))
	}
	if c.Port.Baud <= 0 {
		errs = append(errs, fmt.Errorf("port.baud must be positive, got %d", c.Port.Baud))
	}
	if c.DFU.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("dfu.chunkSize must be positive, got %d", c.DFU.ChunkSize))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
