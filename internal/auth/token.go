// Package auth issues and verifies the bearer tokens carried by signaling
// connections. One verification per connection, before any room operation
// is reachable.
package auth

import (
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

const usernameClaim = "username"

var (
	ErrTokenRequired = errors.New("authentication required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	UserID   domain.UserID
	Username string
}

// Issue signs an HS256 token for the given identity.
func Issue(secret []byte, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Subject(string(id.UserID)).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(usernameClaim, id.Username).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify parses and validates a raw token and extracts the identity.
func Verify(secret []byte, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrTokenRequired
	}
	token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, secret), jwt.WithValidate(true))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	sub := token.Subject()
	if sub == "" || len(sub) > domain.MaxUserIDLen {
		return Identity{}, ErrInvalidToken
	}
	username, _ := token.Get(usernameClaim)
	name, ok := username.(string)
	if !ok || name == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: domain.UserID(sub), Username: name}, nil
}
