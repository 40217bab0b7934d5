package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lalith-99/campuslink/internal/models"
)

// Claims is the payload inside every JWT. It carries the whole Identity
// so the socket handshake never needs a database round-trip: user id,
// display name, role and the org attributes that derive the scoped
// rooms (department, year, section).
type Claims struct {
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Department string    `json:"department,omitempty"`
	Year       int       `json:"year,omitempty"`
	Section    string    `json:"section,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the connection-scoped Identity.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		ID:         c.UserID,
		Name:       c.Name,
		Role:       c.Role,
		Department: c.Department,
		Year:       c.Year,
		Section:    c.Section,
	}
}

// GenerateToken creates a signed HS256 JWT for the given user.
func GenerateToken(user *models.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:     user.ID,
		Name:       user.DisplayName,
		Role:       user.Role,
		Department: user.Department,
		Year:       user.Year,
		Section:    user.Section,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "campuslink",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims. It checks
// the signature, the expiry, and that the signing method is HMAC
// (rejecting algorithm-confusion tokens).
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
