package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all keepsake configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type OracleConfig struct {
	Provider       string `mapstructure:"provider"` // "anthropic", "ollama"
	Model          string `mapstructure:"model"`
	OllamaURL      string `mapstructure:"ollama_url"`
	OllamaModel    string `mapstructure:"ollama_model"`
	AnthropicKey   string `mapstructure:"anthropic_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type EngineConfig struct {
	// PruneIntervalMinutes runs the knowledge source pruning batch on a
	// timer when > 0. Default 0: prune runs on demand only.
	PruneIntervalMinutes int `mapstructure:"prune_interval_minutes"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Oracle: OracleConfig{
			Provider:       "anthropic",
			TimeoutSeconds: 30,
		},
	}
}

// Load reads configuration from the given YAML path (optional) with
// environment variable overrides (prefix KEEPSAKE_, e.g.
// KEEPSAKE_ORACLE_ANTHROPIC_KEY). Missing file is not an error; defaults
// apply.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KEEPSAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.bind", cfg.Server.Bind)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("oracle.provider", cfg.Oracle.Provider)
	v.SetDefault("oracle.model", cfg.Oracle.Model)
	v.SetDefault("oracle.ollama_url", cfg.Oracle.OllamaURL)
	v.SetDefault("oracle.ollama_model", cfg.Oracle.OllamaModel)
	v.SetDefault("oracle.anthropic_key", cfg.Oracle.AnthropicKey)
	v.SetDefault("oracle.timeout_seconds", cfg.Oracle.TimeoutSeconds)
	v.SetDefault("engine.prune_interval_minutes", cfg.Engine.PruneIntervalMinutes)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
