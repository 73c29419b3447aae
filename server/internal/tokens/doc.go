// Package tokens issues the auth value returned by the channel authorization
// endpoint and verifies it when a socket subscribes. A token is an HS256 JWT
// carrying the socket id (sid), the channel (ch) and an expiry.
package tokens
