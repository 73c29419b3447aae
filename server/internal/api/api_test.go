package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/channelmux/pkg/channelmux"
	"github.com/obsidianstack/channelmux/server/internal/api"
	"github.com/obsidianstack/channelmux/server/internal/broker"
	"github.com/obsidianstack/channelmux/server/internal/hub"
	"github.com/obsidianstack/channelmux/server/internal/tokens"
)

// --- test helpers -----------------------------------------------------------

const testKey = "s3cret"

type fixture struct {
	hub    *hub.Hub
	issuer *tokens.Issuer
	api    http.Handler
}

// newFixture wires the API to a running hub over an in-memory broker.
func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()

	issuer := tokens.NewIssuer([]byte("test-secret"), time.Minute)
	b := broker.NewMemory()
	h := hub.New(hub.Options{Tokens: issuer, Broker: b})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx) //nolint:errcheck
	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	<-h.Ready()

	return &fixture{
		hub:    h,
		issuer: issuer,
		api: api.New(api.Options{
			Hub:        h,
			Tokens:     issuer,
			AuthMode:   mode,
			AuthHeader: "X-API-Key",
			AuthKey:    testKey,
		}),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, contentType, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_Empty(t *testing.T) {
	f := newFixture(t, "none")
	rr := get(t, f.api, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Sockets != 0 || resp.Channels != 0 {
		t.Errorf("got %+v", resp)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, "none")
	rr := post(t, f.api, "/api/v1/health", "application/json", "{}", nil)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("expected a JSON error body")
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	f := newFixture(t, "none")
	if rr := get(t, f.api, "/api/v1/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- /api/v1/auth/channels --------------------------------------------------

func TestAuthorize_JSON_IssuesVerifiableToken(t *testing.T) {
	f := newFixture(t, "none")
	rr := post(t, f.api, "/api/v1/auth/channels", "application/json",
		`{"socket_id":"sock-1","channel_name":"private-orders"}`, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.AuthResponse
	decode(t, rr, &resp)
	if err := f.issuer.Verify(resp.Auth, "sock-1", "private-orders"); err != nil {
		t.Errorf("token does not verify: %v", err)
	}
}

func TestAuthorize_Form(t *testing.T) {
	f := newFixture(t, "none")
	form := url.Values{"socket_id": {"sock-2"}, "channel_name": {"presence-lobby"}}
	rr := post(t, f.api, "/api/v1/auth/channels", "application/x-www-form-urlencoded", form.Encode(), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.AuthResponse
	decode(t, rr, &resp)
	if err := f.issuer.Verify(resp.Auth, "sock-2", "presence-lobby"); err != nil {
		t.Errorf("token does not verify: %v", err)
	}
}

func TestAuthorize_BadRequests(t *testing.T) {
	f := newFixture(t, "none")

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing socket", `{"channel_name":"private-x"}`},
		{"missing channel", `{"socket_id":"sock-1"}`},
		{"public channel", `{"socket_id":"sock-1","channel_name":"news"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(t, f.api, "/api/v1/auth/channels", "application/json", tc.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

func TestAuthorize_APIKey(t *testing.T) {
	f := newFixture(t, "apikey")
	body := `{"socket_id":"sock-1","channel_name":"private-x"}`

	if rr := post(t, f.api, "/api/v1/auth/channels", "application/json", body, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("without key: got %d, want 401", rr.Code)
	}
	wrong := http.Header{"X-Api-Key": {"nope"}}
	if rr := post(t, f.api, "/api/v1/auth/channels", "application/json", body, wrong); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d, want 401", rr.Code)
	}
	right := http.Header{"X-Api-Key": {testKey}}
	if rr := post(t, f.api, "/api/v1/auth/channels", "application/json", body, right); rr.Code != http.StatusOK {
		t.Errorf("right key: got %d, want 200", rr.Code)
	}

	// Read-only routes stay open.
	if rr := get(t, f.api, "/api/v1/health"); rr.Code != http.StatusOK {
		t.Errorf("health: got %d, want 200", rr.Code)
	}
}

// --- /api/v1/channels/{name}/events -----------------------------------------

func TestPublish_Accepted(t *testing.T) {
	f := newFixture(t, "none")
	rr := post(t, f.api, "/api/v1/channels/news/events", "application/json",
		`{"event":"headline","data":{"title":"hi"}}`, nil)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.PublishResponse
	decode(t, rr, &resp)
	if resp.Channel != "news" || resp.Event != "headline" {
		t.Errorf("got %+v", resp)
	}
}

func TestPublish_BadRequests(t *testing.T) {
	f := newFixture(t, "none")

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `nope`},
		{"missing event", `{"data":{}}`},
		{"reserved event", `{"event":"whoami"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(t, f.api, "/api/v1/channels/news/events", "application/json", tc.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

// --- end to end -------------------------------------------------------------

// TestEndToEnd serves the API and the websocket hub together, connects the
// client library, and publishes through the HTTP API.
func TestEndToEnd(t *testing.T) {
	f := newFixture(t, "none")

	mux := http.NewServeMux()
	mux.Handle("/ws", f.hub)
	mux.Handle("/", f.api)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := channelmux.Dial(channelmux.Options{
		Host:         "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		AuthEndpoint: srv.URL + "/api/v1/auth/channels",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	got := make(chan string, 1)
	c.Subscribe(channelmux.NewChannel("private-orders", func(event string, data json.RawMessage) {
		got <- event + " " + string(data)
	}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		var chs []hub.ChannelInfo
		decode(t, get(t, f.api, "/api/v1/channels"), &chs)
		if len(chs) == 1 && chs[0].Name == "private-orders" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("channel not joined, got %v", chs)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rr := post(t, f.api, "/api/v1/channels/private-orders/events", "application/json",
		`{"event":"created","data":{"id":7}}`, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("publish: got %d", rr.Code)
	}

	select {
	case msg := <-got:
		if msg != `created {"id":7}` {
			t.Errorf("got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
