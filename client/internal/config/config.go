package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/channelmux/pkg/channelmux"
	"github.com/obsidianstack/channelmux/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultKeepaliveInterval = channelmux.DefaultKeepaliveInterval
	DefaultBufferSize        = channelmux.DefaultBufferLimit
	DefaultAuthTimeout       = channelmux.DefaultAuthTimeout
)

// Config is the top-level client configuration.
type Config struct {
	Client ClientConfig `yaml:"client"`
}

// ClientConfig holds all settings for one connection to a channel server.
type ClientConfig struct {
	// Host is the websocket URL of the server (ws:// or wss://).
	Host string `yaml:"host"`

	// AuthEndpoint is the HTTP URL that issues tokens for private-* and
	// presence-* channels.
	AuthEndpoint string `yaml:"auth_endpoint"`

	// KeepaliveInterval is the period of the ping event.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// AuthTimeout bounds one authorization request.
	AuthTimeout time.Duration `yaml:"auth_timeout"`

	// BufferSize is the maximum number of envelopes held while the socket is
	// not yet open. -1 disables the limit.
	BufferSize int `yaml:"buffer_size"`

	// Channels are subscribed on start. Edits are applied on reload.
	Channels []string `yaml:"channels"`

	// Auth configures credentials for the auth endpoint and the websocket
	// handshake.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds TLS dial options for wss:// and https:// endpoints.
	TLS TLSConfig `yaml:"tls"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AuthConfig specifies the authentication mode used toward the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token, used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ProtectedChannels returns the configured channels that need authorization.
func (c ClientConfig) ProtectedChannels() []string {
	var out []string
	for _, ch := range c.Channels {
		if types.RequiresAuth(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Client: ClientConfig{
			KeepaliveInterval: DefaultKeepaliveInterval,
			AuthTimeout:       DefaultAuthTimeout,
			BufferSize:        DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	c := cfg.Client
	if c.Host == "" {
		return fmt.Errorf("client.host is required")
	}
	if u, err := url.Parse(c.Host); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("client.host %q must be a ws:// or wss:// URL", c.Host)
	}
	if c.AuthEndpoint == "" {
		return fmt.Errorf("client.auth_endpoint is required")
	}
	if u, err := url.Parse(c.AuthEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("client.auth_endpoint %q must be an http:// or https:// URL", c.AuthEndpoint)
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("client.keepalive_interval must be positive")
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("client.auth_timeout must be positive")
	}
	if c.BufferSize == 0 || c.BufferSize < -1 {
		return fmt.Errorf("client.buffer_size must be positive or -1")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		if seen[ch] {
			return fmt.Errorf("channels[%d]: duplicate channel %q", i, ch)
		}
		seen[ch] = true
	}

	switch c.Auth.Mode {
	case "mtls":
		if c.Auth.CertFile == "" || c.Auth.KeyFile == "" {
			return fmt.Errorf("auth: mtls requires cert_file and key_file")
		}
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("auth: unknown mode %q", c.Auth.Mode)
	}
	return nil
}
