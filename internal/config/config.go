// Package config loads contentmill settings from a YAML config file,
// environment variables, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type PipelineConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AdvisorConfig struct {
	URL           string  `mapstructure:"url"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type Config struct {
	DBPath   string         `mapstructure:"db"`
	Port     int            `mapstructure:"port"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Advisor  AdvisorConfig  `mapstructure:"advisor"`
}

// Load reads configuration from cfgFile when given, otherwise from
// ./contentmill.yaml or ~/.config/contentmill/contentmill.yaml.
// Environment variables use the CONTENTMILL_ prefix. A missing config
// file is not an error; defaults apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db", "./contentmill.db")
	v.SetDefault("port", 8080)
	v.SetDefault("pipeline.timeout", 2*time.Minute)
	v.SetDefault("advisor.min_confidence", 0.6)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("contentmill")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "contentmill"))
		}
	}

	v.SetEnvPrefix("CONTENTMILL")
	// Nested keys map to flat env vars: pipeline.url -> CONTENTMILL_PIPELINE_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only consults keys viper already knows about, so
	// bind the URL keys that have no default.
	for _, key := range []string{"pipeline.url", "advisor.url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}
