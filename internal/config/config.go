package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AuthModeSession  = "session"
	AuthModeIdentity = "identity"
)

type Config struct {
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	AuthMode       string
	GoogleClientID string
	JWTSecret      string

	SessionDuration time.Duration
	LoginRatePerSec float64
	LoginRateBurst  int
	DBMaxOpenConns  int

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Off unless the server sits behind a proxy that sets them.
	TrustProxyHeaders bool
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		HTTPPort:       getEnvOrDefault("HTTP_PORT", "8080"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		AuthMode:       strings.ToLower(getEnvOrDefault("AUTH_MODE", AuthModeSession)),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	secs, err := getEnvInt("SESSION_DURATION", 3600)
	if err != nil {
		return nil, err
	}
	cfg.SessionDuration = time.Duration(secs) * time.Second

	if cfg.LoginRateBurst, err = getEnvInt("LOGIN_RATE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if s := os.Getenv("TRUST_PROXY_HEADERS"); s != "" {
		if cfg.TrustProxyHeaders, err = strconv.ParseBool(s); err != nil {
			return nil, fmt.Errorf("TRUST_PROXY_HEADERS: %w", err)
		}
	}
	cfg.LoginRatePerSec = 1
	if s := os.Getenv("LOGIN_RATE_PER_SEC"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("LOGIN_RATE_PER_SEC: %w", err)
		}
		cfg.LoginRatePerSec = v
	}
	return cfg, nil
}

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is empty"))
	}
	switch c.AuthMode {
	case AuthModeSession:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required when AUTH_MODE=session"))
		}
	case AuthModeIdentity:
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeSession, AuthModeIdentity, c.AuthMode))
	}
	if c.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is empty"))
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, errors.New("SESSION_DURATION must be positive"))
	}
	if c.LoginRatePerSec <= 0 || c.LoginRateBurst <= 0 {
		errs = append(errs, errors.New("login rate limit must be positive"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
