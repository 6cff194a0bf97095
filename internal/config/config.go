// Package config loads runtime settings. The shell takes no command line
// flags; everything comes from defaults, an optional settings file and
// MEATYCAPTURE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"meatycapture/internal/logger"
)

const envPrefix = "MEATYCAPTURE"

type Config struct {
	Log struct {
		Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`

	FS struct {
		// DataDir is an extra filesystem scope root, typically where the
		// user keeps capture documents.
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"fs"`

	Shell struct {
		Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	} `mapstructure:"shell"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("fs.data_dir", "")
	v.SetDefault("shell.timeout", 30*time.Second)
}

// Load reads settings. configDir may be empty; a missing settings file is
// not an error.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if d := cfg.FS.DataDir; d != "" && !strings.HasPrefix(d, "$") && !filepath.IsAbs(d) {
		return fmt.Errorf("fs.data_dir %q must be absolute or start with a base directory variable", d)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logger.LogLevel {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.InfoLevel
	}
	return level
}

// NewLogger builds the application logger from the log settings.
func (c *Config) NewLogger() logger.Logger {
	if c.Log.JSON {
		return logger.NewJSONLogger(c.LogLevel())
	}
	return logger.NewConsoleLogger(c.LogLevel())
}
