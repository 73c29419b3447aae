package httpauth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/channelmux/client/internal/config"
	"github.com/obsidianstack/channelmux/pkg/channelmux"
)

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	h := Header(t.auth)
	if len(h) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range h {
		req.Header[k] = v
	}
	return t.base.RoundTrip(req)
}

// Header returns the credentials for auth as HTTP headers. It is used both by
// the authorization client and for the websocket handshake, which cannot go
// through a RoundTripper. mtls and none yield an empty header.
func Header(auth config.AuthConfig) http.Header {
	h := make(http.Header)
	switch auth.Mode {
	case "apikey":
		name := auth.Header
		if name == "" {
			name = "X-API-Key"
		}
		h.Set(name, auth.Key())
	case "bearer":
		h.Set("Authorization", "Bearer "+auth.Token())
	case "basic":
		r := &http.Request{Header: h}
		r.SetBasicAuth(auth.Username, auth.Password())
	}
	return h
}

// TLSConfig builds the client TLS settings, loading the client certificate
// and CA bundle when the auth mode is mtls.
func TLSConfig(c config.ClientConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: c.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if c.Auth.Mode != "mtls" {
		return tlsCfg, nil
	}

	cert, err := tls.LoadX509KeyPair(c.Auth.CertFile, c.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("httpauth: load client cert: %w", err)
	}
	tlsCfg.Certificates = []tls.Certificate{cert}

	if c.Auth.CAFile != "" {
		caPEM, err := os.ReadFile(c.Auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("httpauth: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("httpauth: no valid certs found in ca file %q", c.Auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// NewClient returns the http.Client used for channel authorization requests.
func NewClient(c config.ClientConfig) (*http.Client, error) {
	tlsCfg, err := TLSConfig(c)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: c.Auth,
		},
		Timeout: c.AuthTimeout,
	}, nil
}

// NewDialer returns a websocket dialer sharing the client's TLS settings.
func NewDialer(c config.ClientConfig) (*websocket.Dialer, error) {
	tlsCfg, err := TLSConfig(c)
	if err != nil {
		return nil, err
	}
	d := *websocket.DefaultDialer
	d.TLSClientConfig = tlsCfg
	d.HandshakeTimeout = channelmux.DefaultHandshakeTimeout
	return &d, nil
}
