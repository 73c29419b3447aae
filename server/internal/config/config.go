package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort    = 8080
	DefaultTokenTTL    = 5 * time.Minute
	DefaultBroker      = "memory"
	DefaultTopic       = "channelmux.events"
	DefaultIdleTimeout = 60 * time.Second
	DefaultSendBuffer  = 64
)

// Config holds the server-side configuration parsed from the `server:`
// section of the config file. Other top-level keys are ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and websocket endpoint listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth protects the authorization and publish endpoints.
	Auth AuthConfig `yaml:"auth"`

	// Tokens controls the channel authorization tokens.
	Tokens TokensConfig `yaml:"tokens"`

	// Broker selects how published events reach every server instance.
	Broker BrokerConfig `yaml:"broker"`

	// Hub tunes per-socket behaviour.
	Hub HubConfig `yaml:"hub"`
}

// AuthConfig controls client authentication on the REST endpoints.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TokensConfig controls the signed tokens returned by the authorization endpoint.
type TokensConfig struct {
	// SecretEnv names the environment variable holding the HMAC signing key.
	// When unset or empty the server generates a random key at startup.
	SecretEnv string `yaml:"secret_env"`

	// TTL is how long an issued token may be presented in a subscribe (default 5m).
	TTL time.Duration `yaml:"ttl"`
}

// Secret returns the signing key resolved from the environment.
func (t TokensConfig) Secret() string {
	if t.SecretEnv == "" {
		return ""
	}
	return os.Getenv(t.SecretEnv)
}

// BrokerConfig selects the fan-out backend.
type BrokerConfig struct {
	// Backend is one of: memory | redis | amqp.
	Backend string `yaml:"backend"`

	// URLEnv names the environment variable holding the broker URL
	// (redis://... or amqp://...). Ignored by the memory backend.
	URLEnv string `yaml:"url_env"`

	// Topic is the redis channel or amqp exchange name.
	Topic string `yaml:"topic"`
}

// URL returns the broker URL resolved from the environment.
func (b BrokerConfig) URL() string {
	if b.URLEnv == "" {
		return ""
	}
	return os.Getenv(b.URLEnv)
}

// HubConfig tunes the websocket side.
type HubConfig struct {
	// IdleTimeout closes a socket that sent nothing (not even a ping event)
	// for this long. Default 60s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// SendBuffer is the per-socket outgoing frame queue depth. A socket whose
	// queue overflows is disconnected. Default 64.
	SendBuffer int `yaml:"send_buffer"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Tokens:   TokensConfig{TTL: DefaultTokenTTL},
			Broker:   BrokerConfig{Backend: DefaultBroker, Topic: DefaultTopic},
			Hub:      HubConfig{IdleTimeout: DefaultIdleTimeout, SendBuffer: DefaultSendBuffer},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Tokens.TTL <= 0 {
		return fmt.Errorf("server.tokens.ttl must be positive")
	}
	switch s.Broker.Backend {
	case "memory":
	case "redis", "amqp":
		if s.Broker.URLEnv == "" {
			return fmt.Errorf("server.broker.url_env is required for backend %q", s.Broker.Backend)
		}
	default:
		return fmt.Errorf("server.broker.backend %q unknown: want memory|redis|amqp", s.Broker.Backend)
	}
	if s.Broker.Topic == "" {
		return fmt.Errorf("server.broker.topic must not be empty")
	}
	if s.Hub.IdleTimeout <= 0 {
		return fmt.Errorf("server.hub.idle_timeout must be positive")
	}
	if s.Hub.SendBuffer <= 0 {
		return fmt.Errorf("server.hub.send_buffer must be positive")
	}
	return nil
}
