package session

import "errors"

// Sentinel errors for the authentication and session layer. Handlers map
// these to HTTP status codes; everything else is treated as a server error.
var (
	// ErrMissingCredential indicates no token or session cookie was supplied.
	ErrMissingCredential = errors.New("session: missing credential")
	// ErrInvalidAssertion indicates the identity provider token failed verification.
	ErrInvalidAssertion = errors.New("session: invalid identity assertion")
	// ErrMalformedSession indicates the session token is structurally or cryptographically invalid.
	ErrMalformedSession = errors.New("session: malformed session token")
	// ErrExpiredSession indicates the session token is past its expiry.
	ErrExpiredSession = errors.New("session: session expired")
	// ErrSigningUnavailable indicates the signing secret is not configured.
	ErrSigningUnavailable = errors.New("session: signing unavailable")
	// ErrStoreUnavailable indicates a user store I/O failure.
	ErrStoreUnavailable = errors.New("session: user store unavailable")
)
