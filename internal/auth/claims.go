package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/homegate/internal/session"
)

// defaultTTLMinutes applies when GenerateAccessToken is given no TTL.
const defaultTTLMinutes = 15

// Claims is the access token issued by the orchestration service's login
// endpoint. The gateway only verifies it.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"id"`
	Username  string `json:"username,omitempty"`
	Roles     Roles  `json:"role"`
	SessionID string `json:"sessionId,omitempty"`
}

// Identity returns the session identity the token describes.
func (c *Claims) Identity() session.Identity {
	return session.Identity{
		UserID:    c.UserID,
		Username:  c.Username,
		Roles:     []string(c.Roles),
		SessionID: c.SessionID,
	}
}

// GenerateAccessToken signs claims with secret. Timestamps, the JTI and a
// missing SessionID are filled in. Production tokens come from the
// orchestration service; this exists for tests and local tooling.
func GenerateAccessToken(claims Claims, secret string, ttlMinutes int) (string, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	now := time.Now()
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute))
	claims.ID = uuid.NewString()
	if claims.SessionID == "" {
		claims.SessionID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 access token and returns its claims. An
// expired token fails with ErrTokenExpired, anything else with
// ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}

	return claims, nil
}
