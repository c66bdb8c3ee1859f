// Package identity validates identity provider assertions and binds the
// verified claims to local user records.
package identity

import (
	"context"
	"crypto"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pluginmind/pluginmind-backend/internal/session"
)

// Claims are the externally asserted facts about a user at login time.
// They are constructed per login attempt and discarded after binding.
type Claims struct {
	Email     string
	SubjectID string
	Name      string
	Picture   string
}

// Verifier validates a raw identity assertion and extracts normalized claims.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// KeySource resolves provider signing keys by key ID.
type KeySource interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Google accepts both issuer forms for ID tokens.
var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// googleClaims is the internal claims type used for ID token parsing.
type googleClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleVerifier validates Google ID tokens against the configured OAuth
// client ID and the provider's current public key material.
type GoogleVerifier struct {
	audience string
	keys     KeySource

	// Now supplies the verification clock. Defaults to time.Now.
	Now func() time.Time
}

// NewGoogleVerifier constructs a GoogleVerifier.
func NewGoogleVerifier(audience string, keys KeySource) *GoogleVerifier {
	return &GoogleVerifier{audience: strings.TrimSpace(audience), keys: keys}
}

// Verify validates the assertion's signature and standard claims and extracts
// the normalized claim set. It has no side effects.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Claims{}, session.ErrMissingCredential
	}
	if v == nil || v.keys == nil || v.audience == "" {
		return Claims{}, fmt.Errorf("identity: google verifier is not configured")
	}

	var parsed googleClaims
	_, errParse := jwt.ParseWithClaims(rawToken, &parsed, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock),
	)
	if errParse != nil {
		return Claims{}, session.ErrInvalidAssertion
	}

	if !issuerAllowed(parsed.Issuer) {
		return Claims{}, session.ErrInvalidAssertion
	}

	email := strings.TrimSpace(parsed.Email)
	subject := strings.TrimSpace(parsed.Subject)
	if email == "" || subject == "" {
		return Claims{}, session.ErrInvalidAssertion
	}

	return Claims{
		Email:     email,
		SubjectID: subject,
		Name:      strings.TrimSpace(parsed.Name),
		Picture:   strings.TrimSpace(parsed.Picture),
	}, nil
}

func (v *GoogleVerifier) clock() time.Time {
	if v != nil && v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func issuerAllowed(issuer string) bool {
	for _, allowed := range googleIssuers {
		if issuer == allowed {
			return true
		}
	}
	return false
}
