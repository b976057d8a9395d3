// Package sessiontoken issues and verifies the bearer tokens that bind an
// embedding page to one wizard session.
package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "contractor-booking"

var (
	ErrMissingSecret = errors.New("sessiontoken: signing secret required")
	ErrInvalidToken  = errors.New("sessiontoken: invalid token")
)

// Claims identify the session a token was issued for.
type Claims struct {
	BusinessID string `json:"biz"`
	jwt.RegisteredClaims
}

// SessionID returns the subject of the token.
func (c Claims) SessionID() string { return c.Subject }

// Issuer signs HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. A non-positive ttl defaults to 24 hours.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for sessionID.
func (i *Issuer) Issue(sessionID, businessID string) (string, error) {
	now := i.now()
	claims := Claims{
		BusinessID: businessID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sessiontoken: sign: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and checks signature, issuer and expiry.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
