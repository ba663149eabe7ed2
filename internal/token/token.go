package token

import (
	"campusgate/internal/model"
	"errors"
	"fmt"
	"github.com/golang-jwt/jwt/v5"
	"strings"
	"time"
)

var (
	ErrNotJWT  = errors.New("token is not a JWT")
	ErrExpired = errors.New("token expired")
)

// Claims are the fields the SSO service puts into its access tokens.
type Claims struct {
	Session   string
	UserID    string
	DeviceID  string
	Role      string
	Email     string
	Version   int
	ExpiresAt time.Time
}

// Inspect decodes a token without verifying its signature. The client never
// holds the signing secret; the backend still verifies every request.
func Inspect(tokenString string) (*Claims, error) {
	if strings.Count(tokenString, ".") != 2 {
		return nil, ErrNotJWT
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}

	out := &Claims{}
	out.Session, _ = claims["session"].(string)
	out.Role, _ = claims["role"].(string)
	out.Email, _ = claims["email"].(string)
	if ver, ok := claims["ver"].(float64); ok {
		out.Version = int(ver)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	// session is "<userID>:<deviceID>"
	if parts := strings.SplitN(out.Session, ":", 2); len(parts) == 2 {
		out.UserID, out.DeviceID = parts[0], parts[1]
	} else if sub, err := claims.GetSubject(); err == nil {
		out.UserID = sub
	}

	return out, nil
}

func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func (c *Claims) User() model.User {
	u := model.User{"_id": c.UserID, "role": c.Role}
	if c.Email != "" {
		u["email"] = c.Email
	}
	return u
}

// CheckExpiry rejects JWTs whose exp is in the past. Opaque tokens pass: only
// the backend can judge them.
func CheckExpiry(tokenString string) error {
	claims, err := Inspect(tokenString)
	if errors.Is(err, ErrNotJWT) {
		return nil
	}
	if err != nil {
		return err
	}
	if claims.Expired(time.Now()) {
		return ErrExpired
	}
	return nil
}
