package identity

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GoogleCertsURL is Google's JWKS endpoint for ID token signing keys.
const GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

// defaultKeyTTL is used when the certs response carries no max-age.
const defaultKeyTTL = time.Hour

// GoogleKeySource fetches Google's public signing keys and caches them for
// the duration advertised by the endpoint's Cache-Control header.
type GoogleKeySource struct {
	client *http.Client
	url    string

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	refresh time.Time
}

// NewGoogleKeySource constructs a GoogleKeySource with a bounded HTTP client.
func NewGoogleKeySource() *GoogleKeySource {
	return &GoogleKeySource{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    GoogleCertsURL,
	}
}

// Key returns the public key for the given key ID, refreshing the cached set
// when it is stale or the key ID is unknown.
func (s *GoogleKeySource) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if s == nil {
		return nil, fmt.Errorf("identity: key source is not configured")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, fmt.Errorf("identity: assertion has no key id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if key, ok := s.keys[kid]; ok && now.Before(s.refresh) {
		return key, nil
	}

	keys, ttl, errFetch := s.fetch(ctx)
	if errFetch != nil {
		// A still-cached key is better than failing every login during a
		// transient certs outage.
		if key, ok := s.keys[kid]; ok {
			return key, nil
		}
		return nil, errFetch
	}
	s.keys = keys
	s.refresh = now.Add(ttl)

	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("identity: unknown signing key %q", kid)
	}
	return key, nil
}

// jwk is the subset of the JWKS key entry needed for RSA keys.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *GoogleKeySource) fetch(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if errReq != nil {
		return nil, 0, fmt.Errorf("identity: build certs request: %w", errReq)
	}
	resp, errDo := s.client.Do(req)
	if errDo != nil {
		return nil, 0, fmt.Errorf("identity: fetch certs: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("identity: fetch certs: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []jwk `json:"keys"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&payload); errDecode != nil {
		return nil, 0, fmt.Errorf("identity: decode certs: %w", errDecode)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, entry := range payload.Keys {
		if entry.Kty != "RSA" || entry.Kid == "" {
			continue
		}
		key, errParse := parseRSAKey(entry)
		if errParse != nil {
			continue
		}
		keys[entry.Kid] = key
	}
	if len(keys) == 0 {
		return nil, 0, fmt.Errorf("identity: certs response contained no usable keys")
	}
	return keys, cacheTTL(resp.Header.Get("Cache-Control")), nil
}

func parseRSAKey(entry jwk) (*rsa.PublicKey, error) {
	nBytes, errN := base64.RawURLEncoding.DecodeString(entry.N)
	if errN != nil {
		return nil, fmt.Errorf("identity: decode modulus: %w", errN)
	}
	eBytes, errE := base64.RawURLEncoding.DecodeString(entry.E)
	if errE != nil {
		return nil, fmt.Errorf("identity: decode exponent: %w", errE)
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("identity: invalid exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

// cacheTTL extracts max-age from a Cache-Control header.
func cacheTTL(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		seconds, errParse := strconv.Atoi(strings.TrimPrefix(part, "max-age="))
		if errParse != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultKeyTTL
}
