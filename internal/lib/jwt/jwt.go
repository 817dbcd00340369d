package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTokenClaims = errors.New("invalid token claims")
)

type Claims struct {
	UserID uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

// Signer is one signing context. Access and refresh tokens get separate
// Signers so a leaked secret compromises only one side.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) Signer {
	return Signer{secret: []byte(secret), ttl: ttl}
}

func (s Signer) TTL() time.Duration {
	return s.ttl
}

func (s Signer) Sign(userID uuid.UUID) (string, error) {
	now := time.Now()

	// The jti makes every token unique even when two are signed within
	// the same second; rotation relies on old and new never colliding.
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

// Parse verifies signature and expiry and returns the embedded user id.
func (s Signer) Parse(tokenString string) (uuid.UUID, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	if claims.UserID == uuid.Nil {
		return uuid.Nil, ErrInvalidTokenClaims
	}

	return claims.UserID, nil
}
