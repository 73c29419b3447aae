// Package security inspects the TLS certificate of the channel server before
// the client connects, so an expiring or untrusted certificate shows up in the
// logs instead of as an opaque handshake failure.
package security
