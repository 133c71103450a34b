package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identity provider modes
const (
	IdentityGoTrue = "gotrue"
	IdentityMemory = "memory"
)

// Catalog sources
const (
	CatalogSeed     = "seed"
	CatalogPostgres = "postgres"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Identity IdentityConfig
	Email    EmailConfig
	Storage  StorageConfig
	Checkout CheckoutConfig
}

type DatabaseConfig struct {
	Enabled           bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// ServerConfig configures the loopback listener that receives sign-in
// redirects.
type ServerConfig struct {
	Addr         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    int // requests per minute per client
	RedirectWait time.Duration
}

type IdentityConfig struct {
	Mode               string
	URL                string
	APIKey             string
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	CodeTTL            time.Duration
	ConfirmationTTL    time.Duration
	ResendCooldown     time.Duration
	MaxCodeAttempts    int
	RefreshMargin      time.Duration
	RefreshInterval    time.Duration
	FailureDelay       time.Duration
	FailureJitter      time.Duration
}

type EmailConfig struct {
	Provider    string // "ses" or "log"
	Region      string
	FromAddress string
}

type StorageConfig struct {
	SessionPath   string
	CatalogSource string
}

type CheckoutConfig struct {
	Delay         time.Duration
	DeclineAll    bool
	NotifySellers bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Enabled:           getEnvAsBool("DB_ENABLED", false),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "cardswap"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 4)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 0)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Addr:         getEnv("CALLBACK_ADDR", "127.0.0.1:8765"),
			Env:          env,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateLimit:    getEnvAsInt("CALLBACK_RATE_LIMIT", 30),
			RedirectWait: getEnvAsDuration("CALLBACK_WAIT", 5*time.Minute),
		},
		Identity: IdentityConfig{
			Mode:               strings.ToLower(getEnv("IDENTITY_MODE", IdentityGoTrue)),
			URL:                getEnv("AUTH_URL", ""),
			APIKey:             getEnv("AUTH_API_KEY", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			CodeTTL:            getEnvAsDuration("LOGIN_CODE_TTL", 10*time.Minute),
			ConfirmationTTL:    getEnvAsDuration("CONFIRMATION_TTL", 24*time.Hour),
			ResendCooldown:     getEnvAsDuration("LOGIN_CODE_RESEND_COOLDOWN", 60*time.Second),
			MaxCodeAttempts:    getEnvAsInt("LOGIN_CODE_MAX_ATTEMPTS", 5),
			RefreshMargin:      getEnvAsDuration("SESSION_REFRESH_MARGIN", 2*time.Minute),
			RefreshInterval:    getEnvAsDuration("SESSION_REFRESH_INTERVAL", 30*time.Second),
			FailureDelay:       getEnvAsDuration("LOGIN_FAILURE_DELAY", 250*time.Millisecond),
			FailureJitter:      getEnvAsDuration("LOGIN_FAILURE_JITTER", 100*time.Millisecond),
		},
		Email: EmailConfig{
			Provider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			Region:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@cardswap.local"),
		},
		Storage: StorageConfig{
			SessionPath:   getEnv("SESSION_DB_PATH", defaultSessionPath()),
			CatalogSource: strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSeed)),
		},
		Checkout: CheckoutConfig{
			Delay:         getEnvAsDuration("CHECKOUT_DELAY", 1500*time.Millisecond),
			DeclineAll:    getEnvAsBool("CHECKOUT_DECLINE_ALL", false),
			NotifySellers: getEnvAsBool("CHECKOUT_NOTIFY_SELLERS", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Identity.Mode {
	case IdentityGoTrue:
		if c.Identity.URL == "" {
			return fmt.Errorf("AUTH_URL is required when IDENTITY_MODE=%s", IdentityGoTrue)
		}
		if c.Identity.APIKey == "" {
			return fmt.Errorf("AUTH_API_KEY is required when IDENTITY_MODE=%s", IdentityGoTrue)
		}
	case IdentityMemory:
		if c.Identity.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when IDENTITY_MODE=%s", IdentityMemory)
		}
		// Validate JWT secret strength
		if err := validateJWTSecret(c.Identity.JWTSecret, c.Server.Env); err != nil {
			return err
		}
	default:
		return fmt.Errorf("IDENTITY_MODE must be %q or %q, got %q", IdentityGoTrue, IdentityMemory, c.Identity.Mode)
	}

	switch c.Email.Provider {
	case "ses", "log":
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be \"ses\" or \"log\", got %q", c.Email.Provider)
	}

	switch c.Storage.CatalogSource {
	case CatalogSeed:
	case CatalogPostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("CATALOG_SOURCE=%s requires DB_ENABLED=true", CatalogPostgres)
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", CatalogSeed, CatalogPostgres, c.Storage.CatalogSource)
	}

	if c.Database.Enabled && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// CallbackURL is the redirect target registered with the identity provider.
func (c *ServerConfig) CallbackURL() string {
	return "http://" + c.Addr + "/auth/callback"
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cardswap-session.db"
	}
	return filepath.Join(dir, "cardswap", "session.db")
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
