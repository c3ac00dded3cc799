package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Claims is the user information carried in the backend's access token.
type Claims struct {
	LoginID    int64  `json:"loginId"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Eff        int64  `json:"eff"` // expiry, unix milliseconds
	LoginType  string `json:"loginType"`
	DeviceType string `json:"deviceType"`
}

// ExpiresAt is the expiry time, zero when the token has none.
func (c Claims) ExpiresAt() time.Time {
	if c.Eff <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.Eff)
}

// Expired reports whether the token has expired at now.
func (c Claims) Expired(now time.Time) bool {
	exp := c.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// DecodeJWT reads the payload of a JWT without verifying its signature.
// The client only uses it to show who is logged in and to skip requests
// with a token that is known to be expired.
func DecodeJWT(token string) (Claims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 || parts[1] == "" {
		return Claims{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}, false
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, false
	}
	return c, true
}
