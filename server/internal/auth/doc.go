// Package auth provides authentication middleware for the channel server.
//
// APIKey(mode, header, key) returns net/http middleware that validates the
// API key from the named request header. It guards the channel authorization
// endpoint and the publish endpoint; the websocket endpoint itself is open and
// protected channels are gated by signed tokens instead.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 immediately.
package auth
