package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	FrontendURL    string

	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInCallbackURL  string
	LinkedInUserInfoURL  string
	LinkedInOIDCIssuer   string // empty disables ID token signature verification

	SigningSecret string

	DatabaseURL     string
	DatabaseReadURL string // Read replica URL for SELECT queries
	AutoMigrate     bool
	RedisURL        string

	RequireEmail           bool
	TaxonomyFile           string
	InferenceTimeout       time.Duration
	ProfileFetchTimeout    time.Duration
	ProfileFetchRetryDelay time.Duration
	LoginRatePerMinute     int
}

// MinSigningSecretLength is enforced in production
const MinSigningSecretLength = 32

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", "production")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    environment,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		FrontendURL:    normalizeFrontendURL(getEnv("FRONTEND_URL", "http://localhost:3000"), environment),

		LinkedInClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedInClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedInCallbackURL:  getEnv("LINKEDIN_CALLBACK_URL", "http://localhost:8080/auth/linkedin/callback"),
		LinkedInUserInfoURL:  getEnv("LINKEDIN_USERINFO_URL", "https://api.linkedin.com/v2/userinfo"),
		LinkedInOIDCIssuer:   getEnv("LINKEDIN_OIDC_ISSUER", ""),

		SigningSecret: getEnv("SIGNING_SECRET", getEnv("JWT_SECRET", "")),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseReadURL: getEnv("DATABASE_READ_URL", getEnv("DATABASE_URL", "")), // Falls back to write DB if not set
		AutoMigrate:     getBoolEnv("AUTO_MIGRATE", false),
		RedisURL:        getEnv("REDIS_URL", ""),

		RequireEmail:           getBoolEnv("REQUIRE_EMAIL", true),
		TaxonomyFile:           getEnv("TAXONOMY_FILE", ""),
		InferenceTimeout:       getDurationEnv("INFERENCE_TIMEOUT", 3*time.Second),
		ProfileFetchTimeout:    getDurationEnv("PROFILE_FETCH_TIMEOUT", 15*time.Second),
		ProfileFetchRetryDelay: getDurationEnv("PROFILE_FETCH_RETRY_DELAY", time.Second),
		LoginRatePerMinute:     getIntEnv("LOGIN_RATE_PER_MINUTE", 30),
	}, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate reports every missing or unsafe value in one error
func (c *Config) Validate() error {
	var problems []string

	if c.LinkedInClientID == "" {
		problems = append(problems, "LINKEDIN_CLIENT_ID is required")
	}
	if c.LinkedInClientSecret == "" {
		problems = append(problems, "LINKEDIN_CLIENT_SECRET is required")
	}
	if c.LinkedInCallbackURL == "" {
		problems = append(problems, "LINKEDIN_CALLBACK_URL is required")
	}
	if c.FrontendURL == "" {
		problems = append(problems, "FRONTEND_URL is required")
	}
	if c.SigningSecret == "" {
		problems = append(problems, "SIGNING_SECRET is required")
	} else if c.IsProduction() && len(c.SigningSecret) < MinSigningSecretLength {
		problems = append(problems, fmt.Sprintf("SIGNING_SECRET must be at least %d bytes in production", MinSigningSecretLength))
	}
	if c.DatabaseURL == "" && c.IsProduction() {
		problems = append(problems, "DATABASE_URL is required in production")
	}
	if c.ProfileFetchTimeout <= 0 {
		problems = append(problems, "PROFILE_FETCH_TIMEOUT must be positive")
	}
	if c.InferenceTimeout <= 0 {
		problems = append(problems, "INFERENCE_TIMEOUT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// normalizeFrontendURL strips a trailing slash and, in production, adds
// https:// when the scheme was left out.
func normalizeFrontendURL(raw, environment string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if u == "" {
		return ""
	}
	if environment == "production" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("3s") or plain milliseconds ("1500")
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
