package biz

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints view tokens proving a share password was verified, so
// the raw password does not travel with every subsequent request.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a signed token bound to the given file.
func (t *TokenIssuer) Issue(fileID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   fileID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign view token: %w", err)
	}
	return signed, nil
}

// Validate reports whether the token is authentic, unexpired and bound to
// the given file.
func (t *TokenIssuer) Validate(tokenString, fileID string) bool {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	return ok && claims.Subject == fileID
}
