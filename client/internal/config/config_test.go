package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
client:
  host: "wss://rt.example.com/ws"
  auth_endpoint: "https://api.example.com/api/v1/auth/channels"
  keepalive_interval: 5s
  buffer_size: 64
  channels:
    - news
    - private-room1
    - presence-lobby
  auth:
    mode: apikey
    header: X-API-Key
    key_env: CHANNELMUX_KEY
  metrics_addr: ":9102"
`
	cfg := loadFromString(t, yaml)
	c := cfg.Client

	if c.Host != "wss://rt.example.com/ws" {
		t.Errorf("host: got %q", c.Host)
	}
	if c.KeepaliveInterval != 5*time.Second {
		t.Errorf("keepalive_interval: got %v", c.KeepaliveInterval)
	}
	if c.BufferSize != 64 {
		t.Errorf("buffer_size: got %d", c.BufferSize)
	}
	if len(c.Channels) != 3 {
		t.Fatalf("channels: got %d, want 3", len(c.Channels))
	}
	if c.Auth.Header != "X-API-Key" {
		t.Errorf("auth header: got %q", c.Auth.Header)
	}
	if c.MetricsAddr != ":9102" {
		t.Errorf("metrics_addr: got %q", c.MetricsAddr)
	}
	want := []string{"private-room1", "presence-lobby"}
	if got := c.ProtectedChannels(); !reflect.DeepEqual(got, want) {
		t.Errorf("ProtectedChannels: got %v, want %v", got, want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
client:
  host: "ws://localhost:8080/ws"
  auth_endpoint: "http://localhost:8080/api/v1/auth/channels"
`
	cfg := loadFromString(t, yaml)

	if cfg.Client.KeepaliveInterval != DefaultKeepaliveInterval {
		t.Errorf("default keepalive_interval: got %v, want %v", cfg.Client.KeepaliveInterval, DefaultKeepaliveInterval)
	}
	if cfg.Client.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("default auth_timeout: got %v, want %v", cfg.Client.AuthTimeout, DefaultAuthTimeout)
	}
	if cfg.Client.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", cfg.Client.BufferSize, DefaultBufferSize)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing host",
			yaml:    "client:\n  auth_endpoint: http://x/auth\n",
			wantErr: "client.host is required",
		},
		{
			name:    "http host",
			yaml:    "client:\n  host: http://x/ws\n  auth_endpoint: http://x/auth\n",
			wantErr: "ws:// or wss://",
		},
		{
			name:    "missing auth endpoint",
			yaml:    "client:\n  host: ws://x/ws\n",
			wantErr: "client.auth_endpoint is required",
		},
		{
			name:    "zero buffer",
			yaml:    "client:\n  host: ws://x/ws\n  auth_endpoint: http://x/auth\n  buffer_size: -5\n",
			wantErr: "buffer_size",
		},
		{
			name:    "duplicate channel",
			yaml:    "client:\n  host: ws://x/ws\n  auth_endpoint: http://x/auth\n  channels: [news, news]\n",
			wantErr: "duplicate channel",
		},
		{
			name:    "unknown auth mode",
			yaml:    "client:\n  host: ws://x/ws\n  auth_endpoint: http://x/auth\n  auth:\n    mode: magictoken\n",
			wantErr: "unknown mode",
		},
		{
			name:    "mtls without cert",
			yaml:    "client:\n  host: ws://x/ws\n  auth_endpoint: http://x/auth\n  auth:\n    mode: mtls\n",
			wantErr: "cert_file",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_UnboundedBuffer(t *testing.T) {
	cfg := loadFromString(t, "client:\n  host: ws://x/ws\n  auth_endpoint: http://x/auth\n  buffer_size: -1\n")
	if cfg.Client.BufferSize != -1 {
		t.Errorf("buffer_size: got %d, want -1", cfg.Client.BufferSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_TokenAndPassword(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_PASSWORD", "hunter2")
	a := AuthConfig{TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_PASSWORD"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
	if got := a.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q, want %q", got, "hunter2")
	}
}

func TestDiffChannels(t *testing.T) {
	added, removed := DiffChannels(
		[]string{"news", "sport", "private-a"},
		[]string{"sport", "weather", "private-a", "presence-b"},
	)
	if want := []string{"weather", "presence-b"}; !reflect.DeepEqual(added, want) {
		t.Errorf("added: got %v, want %v", added, want)
	}
	if want := []string{"news"}; !reflect.DeepEqual(removed, want) {
		t.Errorf("removed: got %v, want %v", removed, want)
	}

	added, removed = DiffChannels([]string{"a"}, []string{"a"})
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("identical lists: got added=%v removed=%v", added, removed)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
