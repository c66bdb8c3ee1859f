// Package app wires configuration, storage, and the HTTP layer into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pluginmind/pluginmind-backend/internal/auth"
	"github.com/pluginmind/pluginmind-backend/internal/config"
	"github.com/pluginmind/pluginmind-backend/internal/db"
	"github.com/pluginmind/pluginmind-backend/internal/http/api"
	"github.com/pluginmind/pluginmind-backend/internal/identity"
	"github.com/pluginmind/pluginmind-backend/internal/ratelimit"
	"github.com/pluginmind/pluginmind-backend/internal/session"
	"github.com/pluginmind/pluginmind-backend/internal/store"
	"github.com/redis/go-redis/v9"

	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the authentication backend: it loads configuration,
// migrates the database, assembles the login pipeline, and serves until the
// context is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	sessionCfg, err := config.LoadSessionConfig(configPath)
	if err != nil {
		return err
	}
	googleCfg, err := config.LoadGoogleConfig(configPath)
	if err != nil {
		return err
	}
	environment := config.LoadEnvironment(configPath)
	rateCfg := config.LoadRateLimitConfig(configPath)

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	users := store.NewGormUserStore(conn)
	codec := session.NewCodec(sessionCfg.Secret, sessionCfg.Expiry)
	verifier := identity.NewGoogleVerifier(googleCfg.ClientID, identity.NewGoogleKeySource())
	svc := auth.NewService(verifier, identity.NewBinder(users), codec, config.IsProduction(environment), sessionCfg.CookieDomain)

	limiter, errLimiter := buildLimiter(ctx, rateCfg)
	if errLimiter != nil {
		return errLimiter
	}

	if config.IsProduction(environment) {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	if origins := config.LoadCORSOrigins(configPath); len(origins) > 0 {
		engine.Use(corsMiddleware(origins))
	}
	api.RegisterRoutes(engine, api.Deps{
		DB:             conn,
		Service:        svc,
		Users:          users,
		Codec:          codec,
		Limiter:        limiter,
		LoginPerMinute: rateCfg.LoginPerMinute,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":        port,
			"dialect":     db.DialectName(conn),
			"environment": environment,
		}).Info("starting auth backend")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case errServe := <-serveErr:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}

// corsMiddleware enables credentialed CORS for the configured frontend
// origins. The cookie rules out a wildcard origin, so the request origin is
// echoed back only when it is on the allow list.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// buildLimiter selects the rate limit backend: Redis when configured, so the
// login limit holds across instances, otherwise per-process memory.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	if cfg.LoginPerMinute <= 0 {
		return nil, nil
	}
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(), nil
	}

	opts, errParse := redis.ParseURL(cfg.RedisURL)
	if errParse != nil {
		return nil, fmt.Errorf("app: parse redis url: %w", errParse)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		// Fall back rather than refuse to boot; the limiter middleware
		// already degrades open on backend errors.
		log.WithError(errPing).Warn("redis unreachable, using in-memory rate limiter")
		return ratelimit.NewMemoryLimiter(), nil
	}
	return ratelimit.NewRedisLimiter(client, "pluginmind"), nil
}
