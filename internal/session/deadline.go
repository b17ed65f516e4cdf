package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNoExpiry = errors.New("session: token has no exp claim")

// RefreshDelay is how long to wait before refreshing a token that expires
// in remaining: the later of "lead before expiry" and half the remaining
// lifetime. A non-positive result means refresh now.
func RefreshDelay(remaining, lead time.Duration) time.Duration {
	delay := remaining - lead
	if half := remaining / 2; half > delay {
		delay = half
	}
	return delay
}

// TokenExpiry reads the exp claim of a JWT without verifying it; the
// backend is the only party able to verify its tokens.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("decode token exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, errNoExpiry
	}
	return exp.Time, nil
}
