// Package httpauth turns the client auth and TLS settings into the HTTP
// client used for channel authorization and the websocket dialer and
// handshake headers used for the socket itself.
package httpauth
