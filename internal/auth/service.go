// Package auth orchestrates the login and logout state transitions: it
// verifies identity provider assertions, binds them to user records, and
// issues the backend session credential.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pluginmind/pluginmind-backend/internal/identity"
	"github.com/pluginmind/pluginmind-backend/internal/models"
	"github.com/pluginmind/pluginmind-backend/internal/session"

	log "github.com/sirupsen/logrus"
)

// RoleUser is the only role this backend assigns.
const RoleUser = "USER"

// Extension claim keys carried in the session token.
const (
	ClaimUserDBID         = "user_db_id"
	ClaimName             = "name"
	ClaimPicture          = "picture"
	ClaimSubscriptionTier = "subscription_tier"
)

// UserView is the user shape returned to the frontend.
type UserView struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name,omitempty"`
	Picture          string `json:"picture,omitempty"`
	Role             string `json:"role"`
	SubscriptionTier string `json:"subscription_tier"`
	CreatedAt        string `json:"created_at"`
	IsActive         bool   `json:"is_active"`
}

// LoginResult carries the outcome of a successful login.
type LoginResult struct {
	User   UserView
	Token  string
	Cookie *http.Cookie
}

// Service wires assertion verification, identity binding, and session
// issuance into the two user-facing transitions.
type Service struct {
	verifier     identity.Verifier
	binder       *identity.Binder
	codec        *session.Codec
	secureCookie bool
	cookieDomain string
}

// NewService constructs a Service. secureCookie reflects whether the
// deployment serves over encrypted transport.
func NewService(verifier identity.Verifier, binder *identity.Binder, codec *session.Codec, secureCookie bool, cookieDomain string) *Service {
	return &Service{
		verifier:     verifier,
		binder:       binder,
		codec:        codec,
		secureCookie: secureCookie,
		cookieDomain: cookieDomain,
	}
}

// Login performs the full unauthenticated-to-authenticated transition:
// verification strictly precedes binding, which strictly precedes issuance,
// so a record is only ever created for already-trusted claims.
func (s *Service) Login(ctx context.Context, rawAssertion string) (*LoginResult, error) {
	claims, errVerify := s.verifier.Verify(ctx, rawAssertion)
	if errVerify != nil {
		return nil, errVerify
	}

	user, errBind := s.binder.BindOrCreate(ctx, claims)
	if errBind != nil {
		return nil, errBind
	}

	extra := map[string]string{
		ClaimUserDBID:         strconv.FormatUint(user.ID, 10),
		ClaimSubscriptionTier: user.SubscriptionTier,
	}
	if claims.Name != "" {
		extra[ClaimName] = claims.Name
	}
	if claims.Picture != "" {
		extra[ClaimPicture] = claims.Picture
	}

	token, errIssue := s.codec.Issue(user.Email, user.Email, extra)
	if errIssue != nil {
		return nil, errIssue
	}

	log.WithField("email", user.Email).Info("login succeeded, session issued")
	return &LoginResult{
		User:   viewFor(user, claims.Name, claims.Picture),
		Token:  token,
		Cookie: session.ForLogin(token, s.codec.Expiry(), s.secureCookie, s.cookieDomain),
	}, nil
}

// Logout returns the clearing cookie. The transition is purely client-side;
// an already-issued token stays cryptographically valid until it expires.
func (s *Service) Logout() *http.Cookie {
	return session.ForLogout(s.cookieDomain)
}

// View builds the frontend user shape for an existing record, falling back
// to the stored profile snapshot for name and avatar.
func (s *Service) View(user *models.User) UserView {
	name, picture := profileSnapshot(user)
	return viewFor(user, name, picture)
}

func viewFor(user *models.User, name, picture string) UserView {
	return UserView{
		ID:               strconv.FormatUint(user.ID, 10),
		Email:            user.Email,
		Name:             name,
		Picture:          picture,
		Role:             RoleUser,
		SubscriptionTier: user.SubscriptionTier,
		CreatedAt:        user.CreatedAt.UTC().Format(time.RFC3339),
		IsActive:         user.Active,
	}
}

func profileSnapshot(user *models.User) (name, picture string) {
	if user == nil || len(user.Profile) == 0 {
		return "", ""
	}
	var snapshot map[string]string
	if errUnmarshal := json.Unmarshal(user.Profile, &snapshot); errUnmarshal != nil {
		return "", ""
	}
	return snapshot["name"], snapshot["picture"]
}
