package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The cookie never carries session contents. It holds a signed reference
// (the session id as jti) so that forged or tampered values are rejected
// before the store is consulted.

var errInvalidToken = errors.New("invalid session token")

// Claims is the payload of a session cookie token.
type Claims struct {
	jwt.RegisteredClaims
}

func (m *Manager) signToken(id string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// parseToken verifies the signature and returns the session id. Expiry is
// checked unless skipExpiry is set, which Destroy uses so that an expired
// cookie can still remove its record.
func (m *Manager) parseToken(tokenStr string, skipExpiry bool) (string, error) {
	if tokenStr == "" {
		return "", errInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if skipExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", errInvalidToken
	}
	return claims.ID, nil
}
