// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvDBConnection   = "DB_CONNECTION"
	EnvSessionSecret  = "SESSION_SECRET"
	EnvSessionExpiry  = "SESSION_EXPIRY"
	EnvCookieDomain   = "SESSION_COOKIE_DOMAIN"
	EnvGoogleClientID = "GOOGLE_CLIENT_ID"
	EnvEnvironment    = "ENVIRONMENT"
	EnvRedisURL       = "REDIS_URL"
	EnvLoginRateLimit = "LOGIN_RATE_LIMIT"
	EnvCORSOrigins    = "CORS_ORIGINS"
)

// EnvironmentProduction marks deployments serving over encrypted transport.
const EnvironmentProduction = "production"

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingSessionSecret indicates no session signing secret is configured.
var ErrMissingSessionSecret = errors.New("missing session secret (set `session.secret` in config file or SESSION_SECRET)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// SessionConfig holds session secret, expiry, and cookie settings.
type SessionConfig struct {
	Secret       string        `yaml:"secret"`
	Expiry       time.Duration `yaml:"expiry"`
	CookieDomain string        `yaml:"cookie-domain"`
}

// defaultSessionExpiry is used when the config omits or invalidates expiry.
const defaultSessionExpiry = 24 * time.Hour

// LoadSessionConfig loads session settings from the YAML config file.
func LoadSessionConfig(configPath string) (SessionConfig, error) {
	// fileConfig maps the YAML fields needed for session settings.
	type fileConfig struct {
		Session SessionConfig `yaml:"session"`
	}

	result := SessionConfig{Expiry: defaultSessionExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Session
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvSessionSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvSessionExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}
	if domain := strings.TrimSpace(os.Getenv(EnvCookieDomain)); domain != "" {
		result.CookieDomain = domain
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultSessionExpiry
	}
	if strings.TrimSpace(result.Secret) == "" {
		return result, ErrMissingSessionSecret
	}
	return result, nil
}

// GoogleConfig holds identity provider settings.
type GoogleConfig struct {
	ClientID string `yaml:"client-id"`
}

// LoadGoogleConfig loads Google OAuth settings from the YAML config file.
func LoadGoogleConfig(configPath string) (GoogleConfig, error) {
	// fileConfig maps the YAML fields needed for Google settings.
	type fileConfig struct {
		Google GoogleConfig `yaml:"google"`
	}

	var result GoogleConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Google
		}
	}

	if clientID := strings.TrimSpace(os.Getenv(EnvGoogleClientID)); clientID != "" {
		result.ClientID = clientID
	}

	if strings.TrimSpace(result.ClientID) == "" {
		return result, fmt.Errorf("missing google client id (set `google.client-id` in config file or %s)", EnvGoogleClientID)
	}
	return result, nil
}

// LoadEnvironment resolves the deployment environment name.
func LoadEnvironment(configPath string) string {
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		return strings.ToLower(env)
	}

	// fileConfig maps the YAML field for the environment name.
	type fileConfig struct {
		Environment string `yaml:"environment"`
	}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return ""
	}
	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(cfg.Environment))
}

// IsProduction reports whether the environment name denotes production.
func IsProduction(environment string) bool {
	return environment == EnvironmentProduction
}

// LoadCORSOrigins resolves the browser origins allowed to make credentialed
// requests. Cookie auth rules out a wildcard, so an empty list means CORS
// headers are never emitted.
func LoadCORSOrigins(configPath string) []string {
	if raw := strings.TrimSpace(os.Getenv(EnvCORSOrigins)); raw != "" {
		return splitOrigins(strings.Split(raw, ","))
	}

	// fileConfig maps the YAML field for allowed origins.
	type fileConfig struct {
		CORS struct {
			Origins []string `yaml:"origins"`
		} `yaml:"cors"`
	}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return nil
	}
	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil
	}
	return splitOrigins(cfg.CORS.Origins)
}

func splitOrigins(raw []string) []string {
	var origins []string
	for _, origin := range raw {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// RateLimitConfig holds login rate limit settings.
type RateLimitConfig struct {
	LoginPerMinute int    `yaml:"login-per-minute"`
	RedisURL       string `yaml:"redis-url"`
}

// defaultLoginPerMinute bounds login attempts per client per minute.
const defaultLoginPerMinute = 10

// LoadRateLimitConfig loads rate limit settings from the YAML config file.
func LoadRateLimitConfig(configPath string) RateLimitConfig {
	// fileConfig maps the YAML fields needed for rate limit settings.
	type fileConfig struct {
		RateLimit RateLimitConfig `yaml:"rate-limit"`
	}

	result := RateLimitConfig{LoginPerMinute: defaultLoginPerMinute}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if cfg.RateLimit.LoginPerMinute != 0 {
				result.LoginPerMinute = cfg.RateLimit.LoginPerMinute
			}
			if cfg.RateLimit.RedisURL != "" {
				result.RedisURL = cfg.RateLimit.RedisURL
			}
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvLoginRateLimit)); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil {
			result.LoginPerMinute = limit
		}
	}
	if url := strings.TrimSpace(os.Getenv(EnvRedisURL)); url != "" {
		result.RedisURL = url
	}

	if result.LoginPerMinute < 0 {
		result.LoginPerMinute = 0
	}
	return result
}
