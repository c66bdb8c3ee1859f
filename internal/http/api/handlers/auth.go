// Package handlers implements the HTTP endpoint handlers.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pluginmind/pluginmind-backend/internal/auth"
	"github.com/pluginmind/pluginmind-backend/internal/identity"
	"github.com/pluginmind/pluginmind-backend/internal/session"

	log "github.com/sirupsen/logrus"
)

// Context keys set by the session middleware.
const (
	ContextUserID = "sessionUserID"
	ContextEmail  = "sessionEmail"
	ContextClaims = "sessionClaims"
)

// AuthHandler manages login, logout, and session introspection endpoints.
type AuthHandler struct {
	svc   *auth.Service
	users identity.UserStore
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *auth.Service, users identity.UserStore) *AuthHandler {
	return &AuthHandler{svc: svc, users: users}
}

// googleAuthRequest defines the request body for Google login.
type googleAuthRequest struct {
	IDToken string `json:"id_token"`
}

// Login validates a Google ID token, binds the identity to a user record,
// and sets the backend session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var body googleAuthRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	idToken := strings.TrimSpace(body.IDToken)
	if idToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id token is required"})
		return
	}

	result, errLogin := h.svc.Login(c.Request.Context(), idToken)
	if errLogin != nil {
		status, message := loginFailure(errLogin)
		c.JSON(status, gin.H{"error": message})
		return
	}

	http.SetCookie(c.Writer, result.Cookie)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"user":   result.User,
	})
}

// Logout clears the session cookie. The session middleware has already
// ensured the caller holds a valid session; no store access happens here.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	http.SetCookie(c.Writer, h.svc.Logout())
	log.WithField("user_id", userID).Info("user logged out")
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "logged out successfully",
	})
}

// Me returns the current user derived from the session identity.
func (h *AuthHandler) Me(c *gin.Context) {
	email := c.GetString(ContextEmail)

	user, errFind := h.users.FindByEmail(c.Request.Context(), email)
	if errFind != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user store unavailable"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, h.svc.View(user))
}

// Session reports whether the request carries a valid session. Anonymous
// requests get a 200 with authenticated=false; only a present-but-invalid
// cookie is rejected, by the optional session middleware.
func (h *AuthHandler) Session(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user_id":       userID,
	})
}

// loginFailure maps a login error to a status code and a stable client
// message. Store outages are kept distinct from authentication failures so
// clients do not re-prompt for credentials during a downstream outage.
func loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrMissingCredential):
		return http.StatusBadRequest, "id token is required"
	case errors.Is(err, session.ErrInvalidAssertion):
		return http.StatusUnauthorized, "invalid google token"
	case errors.Is(err, session.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "user store unavailable"
	default:
		log.WithError(err).Error("login failed")
		return http.StatusInternalServerError, "internal error during authentication"
	}
}
