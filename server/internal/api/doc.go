// Package api implements the HTTP REST API of the channel server.
//
// New(opts) returns an http.Handler that serves:
//
//	GET  /api/v1/health                 - status, connected sockets, channel count
//	GET  /api/v1/channels               - channels with local members ([]hub.ChannelInfo)
//	POST /api/v1/auth/channels          - authorization endpoint; {socket_id, channel_name} -> {auth}
//	POST /api/v1/channels/{name}/events - publish {event, data} to a channel; 202 on success
//
// The POST endpoints sit behind auth.APIKey. The authorization endpoint
// accepts JSON or urlencoded form bodies and only signs private-* and
// presence-* channels.
//
// All responses are JSON; errors use {"error": "..."}.
package api
