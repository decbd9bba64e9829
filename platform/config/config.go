// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// MailProviderConfig provides OAuth client settings for the two supported
// mail providers. An empty client id means the provider is not configured
// and the authentication flow must be refused up front.
type MailProviderConfig interface {
	GetMicrosoftClientID() string
	GetMicrosoftClientSecret() string
	GetMicrosoftTenantID() string
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetOAuthRedirectURL() string
}

// CredentialConfig provides settings for stored credential handling.
type CredentialConfig interface {
	GetTokenEncryptionKey() []byte
	GetTokenExpirySkew() time.Duration
	// GetRevalidationFailClosed selects the posture when online revalidation
	// cannot be completed: false (default) falls back to the local expiry
	// verdict, true treats the credential as unusable.
	GetRevalidationFailClosed() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DeliveryConfig provides settings for the notification delivery path.
type DeliveryConfig interface {
	GetSenderCacheTTL() time.Duration
	GetSenderCacheSize() int
}

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	MicrosoftClientID      string
	MicrosoftClientSecret  string
	MicrosoftTenantID      string
	GoogleClientID         string
	GoogleClientSecret     string
	OAuthRedirectURL       string
	TokenEncryptionKey     []byte
	TokenExpirySkew        time.Duration
	RevalidationFailClosed bool
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	SenderCacheTTL         time.Duration
	SenderCacheSize        int
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// MailProviderConfig implementation
func (c *Config) GetMicrosoftClientID() string     { return c.MicrosoftClientID }
func (c *Config) GetMicrosoftClientSecret() string { return c.MicrosoftClientSecret }
func (c *Config) GetMicrosoftTenantID() string     { return c.MicrosoftTenantID }
func (c *Config) GetGoogleClientID() string        { return c.GoogleClientID }
func (c *Config) GetGoogleClientSecret() string    { return c.GoogleClientSecret }
func (c *Config) GetOAuthRedirectURL() string      { return c.OAuthRedirectURL }

// CredentialConfig implementation
func (c *Config) GetTokenEncryptionKey() []byte     { return c.TokenEncryptionKey }
func (c *Config) GetTokenExpirySkew() time.Duration { return c.TokenExpirySkew }
func (c *Config) GetRevalidationFailClosed() bool   { return c.RevalidationFailClosed }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DeliveryConfig implementation
func (c *Config) GetSenderCacheTTL() time.Duration { return c.SenderCacheTTL }
func (c *Config) GetSenderCacheSize() int          { return c.SenderCacheSize }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	tokenKey, err := parseTokenKey(getEnv("TOKEN_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		MicrosoftClientID:      getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret:  getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftTenantID:      getEnv("MICROSOFT_TENANT_ID", "common"),
		GoogleClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:     getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectURL:       getEnv("OAUTH_REDIRECT_URL", ""),
		TokenEncryptionKey:     tokenKey,
		TokenExpirySkew:        getDuration("TOKEN_EXPIRY_SKEW", 5*time.Minute),
		RevalidationFailClosed: strings.EqualFold(getEnv("REVALIDATION_FAIL_CLOSED", "false"), "true"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "notifications"),
		AsynqConcurrency:       getInt("ASYNQ_CONCURRENCY", 10),
		SenderCacheTTL:         getDuration("SENDER_CACHE_TTL", 5*time.Minute),
		SenderCacheSize:        getInt("SENDER_CACHE_SIZE", 128),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// parseTokenKey decodes the hex-encoded AES-256 key used to encrypt stored
// tokens. An empty value is allowed (encryption disabled in development).
func parseTokenKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
