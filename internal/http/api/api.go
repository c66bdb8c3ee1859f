// Package api registers the HTTP routes, middleware, and handlers.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/pluginmind/pluginmind-backend/internal/auth"
	"github.com/pluginmind/pluginmind-backend/internal/http/api/handlers"
	"github.com/pluginmind/pluginmind-backend/internal/identity"
	"github.com/pluginmind/pluginmind-backend/internal/ratelimit"
	"github.com/pluginmind/pluginmind-backend/internal/session"
	"gorm.io/gorm"
)

// Deps bundles the collaborators the route tree needs.
type Deps struct {
	DB             *gorm.DB
	Service        *auth.Service
	Users          identity.UserStore
	Codec          *session.Codec
	Limiter        ratelimit.Limiter
	LoginPerMinute int
}

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Service == nil || deps.Codec == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(deps.Service, deps.Users)
	authGroup := r.Group("/v1/auth")
	authGroup.POST("/google", loginRateLimitMiddleware(deps.Limiter, deps.LoginPerMinute), authHandler.Login)
	authGroup.GET("/session", OptionalSessionAuth(deps.Codec), authHandler.Session)

	authedAuth := authGroup.Group("")
	authedAuth.Use(SessionAuth(deps.Codec))
	authedAuth.POST("/logout", authHandler.Logout)
	authedAuth.GET("/me", authHandler.Me)

	userHandler := handlers.NewUserHandler(deps.Service, deps.Users)
	userGroup := r.Group("/v1/users")
	userGroup.Use(SessionAuth(deps.Codec))
	userGroup.GET("/me", userHandler.Me)
	userGroup.GET("/me/usage", userHandler.Usage)
	userGroup.GET("/profile", userHandler.Profile)
}
