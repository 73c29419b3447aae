package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMismatch is returned by Verify when a valid token was issued for a
// different socket or channel.
var ErrMismatch = errors.New("tokens: token not issued for this socket and channel")

// Claims binds a token to one socket and one channel.
type Claims struct {
	SocketID string `json:"sid"`
	Channel  string `json:"ch"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies channel authorization tokens with HMAC-SHA256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer whose tokens expire after ttl.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a token that lets socketID subscribe to channel.
func (i *Issuer) Issue(socketID, channel string) (string, error) {
	now := i.now()
	claims := Claims{
		SocketID: socketID,
		Channel:  channel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("tokens: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and that it was issued for
// socketID and channel.
func (i *Issuer) Verify(token, socketID, channel string) error {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("tokens: verify: %w", err)
	}
	if claims.SocketID != socketID || claims.Channel != channel {
		return ErrMismatch
	}
	return nil
}
