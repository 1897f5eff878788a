// Package config loads runtime configuration from flags, environment
// variables (EMBEDD_ prefix), an optional config.yaml, and an optional
// .env file, in that precedence order via viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "EMBEDD"

// Transport selection for the worker's message channel.
const (
	TransportStdio = "stdio"
	TransportTCP   = "tcp"
)

// Provider selection for the embedding backend.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
)

type Config struct {
	Environment string `mapstructure:"environment"`

	// HTTP gateway (serve mode).
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Worker transport.
	Transport     string `mapstructure:"transport"`
	TCPPort       int    `mapstructure:"tcp_port"`
	PollTimeoutMs int    `mapstructure:"poll_timeout_ms"`

	DefaultModel string `mapstructure:"default_model"`
	Provider     string `mapstructure:"provider"`

	OpenAI *OpenAIConfig `mapstructure:"openai"`
	Cache  *CacheConfig  `mapstructure:"cache"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TTLSecs    int  `mapstructure:"ttl_secs"`
	MaxEntries int  `mapstructure:"max_entries"`
}

// PollTimeout converts the configured poll interval to a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMs) * time.Millisecond
}

var config *Config

// LoadEnvAndConfigFiles primes viper with defaults, env bindings, and the
// optional .env / config.yaml files, then unmarshals the result.
func LoadEnvAndConfigFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.AutomaticEnv()
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = cfg
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "dev")
	viper.SetDefault("host", "localhost")
	viper.SetDefault("port", 8420)
	viper.SetDefault("transport", TransportStdio)
	viper.SetDefault("tcp_port", 8421)
	viper.SetDefault("poll_timeout_ms", 1000)
	viper.SetDefault("default_model", "all-MiniLM-L6-v2")
	viper.SetDefault("provider", ProviderLocal)
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.ttl_secs", 300)
	viper.SetDefault("cache.max_entries", 4096)
}

// MustGetConfig panics when the config has not been loaded.
func MustGetConfig() *Config {
	if config == nil {
		panic("config not initialized")
	}
	return config
}
