// Package session implements the backend session credential: a signed,
// time-bound token issued after identity provider login and carried by the
// pm_session cookie on every subsequent request.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is embedded in every session token and required on verification.
	Issuer = "pluginmind-backend"
	// Audience is embedded in every session token and required on verification.
	Audience = "pluginmind-frontend"
)

// DefaultExpiry is used when the config omits or invalidates session expiry.
const DefaultExpiry = 24 * time.Hour

// Claims is the session token payload: a typed core plus an explicit
// string-keyed extension map for feature-specific extras.
type Claims struct {
	jwt.RegisteredClaims
	UserID string            `json:"user_id"`
	Email  string            `json:"email"`
	Extra  map[string]string `json:"ext,omitempty"`
}

// Codec issues and verifies session tokens with a shared HS256 secret.
// Verification is stateless; validity is determined entirely by the
// signature and the embedded expiry.
type Codec struct {
	secret []byte
	expiry time.Duration

	// Now supplies the verification clock. Defaults to time.Now.
	Now func() time.Time
}

// NewCodec constructs a Codec. A non-positive expiry falls back to DefaultExpiry.
func NewCodec(secret string, expiry time.Duration) *Codec {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Codec{secret: []byte(strings.TrimSpace(secret)), expiry: expiry}
}

// Expiry returns the configured session lifetime.
func (c *Codec) Expiry() time.Duration {
	return c.expiry
}

// Issue creates a signed session token for the given identity. Extra claims
// are carried under the extension map and echoed back verbatim by Verify.
func (c *Codec) Issue(userID, email string, extra map[string]string) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", ErrSigningUnavailable
	}

	now := c.clock().UTC().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiry)),
			ID:        newTokenID(),
		},
		UserID: userID,
		Email:  email,
		Extra:  extra,
	}

	token, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if errSign != nil {
		return "", ErrSigningUnavailable
	}
	return token, nil
}

// Verify checks signature, issuer, audience, and expiry, and returns the
// decoded claims. Expiry is exclusive: a token presented at exactly its
// expiry time is rejected, with no clock-skew leeway.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingCredential
	}
	if c == nil || len(c.secret) == 0 {
		return nil, ErrSigningUnavailable
	}

	var claims Claims
	_, errParse := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.clock),
	)
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSession
		}
		return nil, ErrMalformedSession
	}

	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, ErrMalformedSession
	}
	return &claims, nil
}

func (c *Codec) clock() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// newTokenID returns a random token ID so an external denylist can key on
// individual sessions without a token format change.
func newTokenID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
