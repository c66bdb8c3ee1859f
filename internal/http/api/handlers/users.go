package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pluginmind/pluginmind-backend/internal/auth"
	"github.com/pluginmind/pluginmind-backend/internal/identity"
	"github.com/pluginmind/pluginmind-backend/internal/models"
)

// UserHandler manages profile and usage endpoints for the current user.
type UserHandler struct {
	svc   *auth.Service
	users identity.UserStore
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *auth.Service, users identity.UserStore) *UserHandler {
	return &UserHandler{svc: svc, users: users}
}

// Me returns the current user's profile.
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.View(user))
}

// Usage returns the current user's query usage statistics.
func (h *UserHandler) Usage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	remaining := user.QueriesLimit - user.QueriesUsed
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"queries_used":      user.QueriesUsed,
		"queries_limit":     user.QueriesLimit,
		"remaining_queries": remaining,
		"subscription_tier": user.SubscriptionTier,
		"can_make_query":    user.Active && remaining > 0,
	})
}

// Profile returns the user profile wrapped in the shape the frontend's auth
// service expects.
func (h *UserHandler) Profile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.svc.View(user)})
}

// currentUser loads the user record for the session identity, writing the
// error response when it cannot.
func (h *UserHandler) currentUser(c *gin.Context) (*models.User, bool) {
	email := c.GetString(ContextEmail)

	user, errFind := h.users.FindByEmail(c.Request.Context(), email)
	if errFind != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user store unavailable"})
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	return user, true
}
