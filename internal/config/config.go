// Package config loads the runtime configuration from defaults, an optional
// .env file, an optional hllmetrics.yaml and HLLMETRICS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pable/go-hll-metrics/internal/classify"
	"github.com/pable/go-hll-metrics/internal/logging"
)

// ErrInvalid wraps every validation failure reported by Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the resolved runtime configuration handed to every command.
type Config struct {
	DBPath      string       `mapstructure:"db_path"`
	BatchSize   int          `mapstructure:"batch_size"`
	MetricsFile string       `mapstructure:"metrics_file"`
	Log         LogConfig    `mapstructure:"log"`
	Policy      PolicyConfig `mapstructure:"policy"`
}

// LogConfig selects the log level and optional log file.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// If set, logs are also appended to this file.
	File string `mapstructure:"file"`
}

// PolicyConfig selects which flagged games count toward aggregates.
type PolicyConfig struct {
	IncludeSeeding    bool `mapstructure:"include_seeding"`
	IncludeIncomplete bool `mapstructure:"include_incomplete"`
}

// ClassifyPolicy converts the policy section for the query layer.
func (c *Config) ClassifyPolicy() classify.Policy {
	return classify.Policy{
		IncludeSeeding:    c.Policy.IncludeSeeding,
		IncludeIncomplete: c.Policy.IncludeIncomplete,
	}
}

// Dir is the default location of the database and config file.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".hllmetrics")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(Dir(), "metrics.db"))
	v.SetDefault("batch_size", 50)
	v.SetDefault("metrics_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("policy.include_seeding", false)
	v.SetDefault("policy.include_incomplete", false)
}

// Load builds a Config. cfgFile, when set, must exist; otherwise
// hllmetrics.yaml is looked up in the working directory and Dir(). Variables
// from envFile (default ".env") never override the real environment.
func Load(cfgFile, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("hllmetrics")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("hllmetrics")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalid)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalid, c.BatchSize)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
