package channelmux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "github.com/obsidianstack/channelmux"
	maxAuthBodySize = 64 << 10
)

// Authorizer obtains the token that lets socketID subscribe to a protected
// channel.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (string, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, socketID, channel string) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, socketID, channel string) (string, error) {
	return f(ctx, socketID, channel)
}

// errEmptyToken is wrapped in an AuthError when a 2xx response has no token.
var errEmptyToken = errors.New("response has no auth token")

// AuthError describes a failed authorization exchange. StatusCode is zero when
// no HTTP response was received.
type AuthError struct {
	Channel    string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authorize %q: HTTP %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authorize %q: %v", e.Channel, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type authRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

type authResponse struct {
	Auth string `json:"auth"`
}

// HTTPAuthorizer performs the authorization exchange against an HTTP endpoint.
type HTTPAuthorizer struct {
	endpoint string
	client   *http.Client
	tracer   trace.Tracer
}

// NewHTTPAuthorizer returns an Authorizer that POSTs to endpoint. A nil client
// gets a default one with DefaultAuthTimeout.
func NewHTTPAuthorizer(endpoint string, client *http.Client) *HTTPAuthorizer {
	if client == nil {
		client = &http.Client{Timeout: DefaultAuthTimeout}
	}
	return &HTTPAuthorizer{
		endpoint: endpoint,
		client:   client,
		tracer:   otel.Tracer(tracerName),
	}
}

// Authorize POSTs {socket_id, channel_name} and returns the auth field of the
// response. Any non-2xx status, transport error, undecodable body or empty
// token is reported as an *AuthError.
func (a *HTTPAuthorizer) Authorize(ctx context.Context, socketID, channel string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "channelmux.authorize",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("channelmux.channel", channel),
			attribute.String("channelmux.socket_id", socketID),
		),
	)
	defer span.End()

	token, status, err := a.post(ctx, socketID, channel)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		authErr := &AuthError{Channel: channel, StatusCode: status, Err: err}
		span.RecordError(authErr)
		span.SetStatus(codes.Error, "authorization failed")
		return "", authErr
	}
	span.SetStatus(codes.Ok, "")
	return token, nil
}

func (a *HTTPAuthorizer) post(ctx context.Context, socketID, channel string) (string, int, error) {
	body, err := json.Marshal(authRequest{SocketID: socketID, ChannelName: channel})
	if err != nil {
		return "", 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxAuthBodySize)) //nolint:errcheck
		return "", resp.StatusCode, errors.New(http.StatusText(resp.StatusCode))
	}

	var out authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthBodySize)).Decode(&out); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if out.Auth == "" {
		return "", resp.StatusCode, errEmptyToken
	}
	return out.Auth, resp.StatusCode, nil
}
