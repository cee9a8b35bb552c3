package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	LogRelay LogRelayConfig `yaml:"log_relay"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Registry RegistryConfig `yaml:"registry"`
	NATS     NATSConfig     `yaml:"nats"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LogRelayConfig holds settings for the UDP log relay listener.
// RestartAttempts of zero selects the default; a negative value disables
// receiver restarts entirely.
type LogRelayConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	Port            int           `yaml:"port"`
	QueueSize       int           `yaml:"queue_size"`
	RestartAttempts int           `yaml:"restart_attempts"`
	RestartBackoff  time.Duration `yaml:"restart_backoff"`
}

// Addr returns the full listen address for the UDP socket.
func (c LogRelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.Port)
}

// MetricsConfig holds the Prometheus endpoint settings. An empty listen
// address disables the endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// RegistryConfig selects the match registry backing the secret lookup.
// If Redis.Addr is set the redis registry is used; otherwise the static
// Secrets map serves lookups (development and testing).
type RegistryConfig struct {
	Redis   RedisConfig       `yaml:"redis"`
	Secrets map[string]string `yaml:"secrets"`
}

// RedisConfig holds redis connection settings for the match registry
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NATSConfig holds the optional NATS bridge settings. An empty URL disables
// the bridge.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.LogRelay.ListenAddr == "" {
		cfg.LogRelay.ListenAddr = "0.0.0.0"
	}
	if cfg.LogRelay.Port == 0 {
		cfg.LogRelay.Port = 9871
	}
	if cfg.LogRelay.QueueSize == 0 {
		cfg.LogRelay.QueueSize = 1024
	}
	if cfg.LogRelay.RestartAttempts == 0 {
		cfg.LogRelay.RestartAttempts = 5
	}
	if cfg.LogRelay.RestartBackoff == 0 {
		cfg.LogRelay.RestartBackoff = 2 * time.Second
	}
	if cfg.Registry.Redis.KeyPrefix == "" {
		cfg.Registry.Redis.KeyPrefix = "pickup:logsecret:"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "pickup.events"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	return &cfg, nil
}
