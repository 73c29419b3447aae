package api

import "encoding/json"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sockets  int    `json:"sockets"`
	Channels int    `json:"channels"`
}

// AuthRequest is the body of POST /api/v1/auth/channels.
type AuthRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

// AuthResponse carries the token the client presents when subscribing.
type AuthResponse struct {
	Auth string `json:"auth"`
}

// PublishRequest is the body of POST /api/v1/channels/{name}/events.
type PublishRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PublishResponse acknowledges an accepted publish.
type PublishResponse struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
