package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessLevel is the role a session token grants.
type AccessLevel int

const (
	Anonymous     AccessLevel = 10
	PendingMember AccessLevel = 15
	Member        AccessLevel = 20
	Admin         AccessLevel = 100
	Owner         AccessLevel = 200
	Root          AccessLevel = 255
)

var accessLevelNames = map[AccessLevel]string{
	Anonymous:     "anonymous",
	PendingMember: "pending_member",
	Member:        "member",
	Admin:         "admin",
	Owner:         "owner",
	Root:          "root",
}

func (a AccessLevel) String() string {
	if name, ok := accessLevelNames[a]; ok {
		return name
	}
	return fmt.Sprintf("access(%d)", int(a))
}

// AtLeast reports whether a grants at least the privileges of min.
func (a AccessLevel) AtLeast(min AccessLevel) bool { return a >= min }

// ParseAccessLevel accepts a level name or its numeric value.
func ParseAccessLevel(s string) (AccessLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for level, name := range accessLevelNames {
		if name == s {
			return level, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("invalid access level %q", s)
	}
	return AccessLevel(n), nil
}

// Claims are the fields kapchan reads from a session token.
type Claims struct {
	Role AccessLevel `json:"role"`
	jwt.RegisteredClaims
}

// SessionID returns the session identifier carried in the subject.
func (c *Claims) SessionID() string { return c.Subject }

// Expiry returns the token expiry, or the zero time when there is none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the token had expired at now.
func (c *Claims) Expired(now time.Time) bool {
	exp := c.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}

// ErrMalformedToken is returned for strings that are not a JWT.
var ErrMalformedToken = errors.New("malformed session token")

// ParseClaims reads the claims of a session token without verifying its
// signature. The server verifies tokens; the client only needs the payload.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return claims, nil
}
