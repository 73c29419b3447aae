package httpauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/obsidianstack/channelmux/client/internal/config"
)

func TestNewClient_InjectsCredentials(t *testing.T) {
	t.Setenv("TEST_KEY", "k-123")
	t.Setenv("TEST_TOKEN", "t-456")
	t.Setenv("TEST_PASS", "p-789")

	tests := []struct {
		name  string
		auth  config.AuthConfig
		check func(t *testing.T, r *http.Request)
	}{
		{
			name: "apikey custom header",
			auth: config.AuthConfig{Mode: "apikey", Header: "X-Custom", KeyEnv: "TEST_KEY"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("X-Custom"); got != "k-123" {
					t.Errorf("X-Custom: got %q", got)
				}
			},
		},
		{
			name: "apikey default header",
			auth: config.AuthConfig{Mode: "apikey", KeyEnv: "TEST_KEY"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("X-API-Key"); got != "k-123" {
					t.Errorf("X-API-Key: got %q", got)
				}
			},
		},
		{
			name: "bearer",
			auth: config.AuthConfig{Mode: "bearer", TokenEnv: "TEST_TOKEN"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer t-456" {
					t.Errorf("Authorization: got %q", got)
				}
			},
		},
		{
			name: "basic",
			auth: config.AuthConfig{Mode: "basic", Username: "alice", PasswordEnv: "TEST_PASS"},
			check: func(t *testing.T, r *http.Request) {
				u, p, ok := r.BasicAuth()
				if !ok || u != "alice" || p != "p-789" {
					t.Errorf("basic auth: got %q/%q ok=%v", u, p, ok)
				}
			},
		},
		{
			name: "none",
			auth: config.AuthConfig{Mode: "none"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "" {
					t.Errorf("Authorization should be empty, got %q", got)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tc.check(t, r)
			}))
			defer srv.Close()

			client, err := NewClient(config.ClientConfig{Auth: tc.auth, AuthTimeout: config.DefaultAuthTimeout})
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
		})
	}
}

func TestHeader_DoesNotLeakBetweenModes(t *testing.T) {
	if h := Header(config.AuthConfig{Mode: "mtls"}); len(h) != 0 {
		t.Errorf("mtls header: got %v, want empty", h)
	}
}

func TestTLSConfig_MissingCert(t *testing.T) {
	_, err := TLSConfig(config.ClientConfig{Auth: config.AuthConfig{
		Mode: "mtls", CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem",
	}})
	if err == nil {
		t.Fatal("expected error for missing client cert")
	}
}

func TestNewDialer_CarriesTLSSettings(t *testing.T) {
	d, err := NewDialer(config.ClientConfig{TLS: config.TLSConfig{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	if d.TLSClientConfig == nil || !d.TLSClientConfig.InsecureSkipVerify {
		t.Error("dialer TLS config does not skip verification")
	}
}
