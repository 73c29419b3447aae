// Package types defines the wire envelope shared by the channelmux client and
// the development server.
//
// Every frame on the socket is one JSON object:
//
//	{ "event": "subscribe", "channel": "optional", "data": { ... } }
//
// Encode marshals an Envelope into a text frame. Decode parses a frame and
// returns an error (never panics) for malformed input or a frame with no event
// name; callers log and discard such frames.
//
// Reserved events: whoami (identity handshake), ping (keepalive), subscribe and
// unsubscribe. RequiresAuth reports whether a channel name is access-controlled
// (private-* and presence-*).
package types
