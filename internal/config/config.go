package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Store    StoreConfig
	Policy   PolicyConfig
	Admin    AdminConfig
	Notify   NotifyConfig
	Cleanup  CleanupConfig
}

type DatabaseConfig struct {
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
	RunMigrations     bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	// Coarse per-IP request limit in front of the guard endpoints
	RequestsPerMinute int
}

type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// PolicyConfig holds the policy built from POLICY_* variables and an optional
// TOML file that overrides it.
type PolicyConfig struct {
	Defaults models.RateLimitPolicy
	File     string
	Watch    bool
}

type AdminConfig struct {
	Username     string
	PasswordHash string
	JWTSecret    string
	TokenExpiry  time.Duration
	// Failed admin logins are padded to roughly this long
	LoginDelayBaseMs   int
	LoginDelayRandomMs int
}

// Enabled reports whether the admin API should be mounted
func (c AdminConfig) Enabled() bool {
	return c.Username != "" && c.PasswordHash != ""
}

type NotifyConfig struct {
	AWSRegion   string
	FromAddress string
	ToAddress   string
}

// Enabled reports whether lockout notifications should be sent
func (c NotifyConfig) Enabled() bool {
	return c.FromAddress != "" && c.ToAddress != ""
}

type CleanupConfig struct {
	RetentionPeriod time.Duration
	Interval        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	defaults := models.DefaultPolicy()
	policyDefaults := models.RateLimitPolicy{
		MaxAttempts:                getEnvAsInt("POLICY_MAX_ATTEMPTS", defaults.MaxAttempts),
		TimeWindowMinutes:          getEnvAsInt("POLICY_TIME_WINDOW_MINUTES", defaults.TimeWindowMinutes),
		LockoutEnabled:             getEnvAsBool("POLICY_LOCKOUT_ENABLED", defaults.LockoutEnabled),
		LockoutDurationMinutes:     getEnvAsInt("POLICY_LOCKOUT_DURATION_MINUTES", defaults.LockoutDurationMinutes),
		LockoutExtensionEnabled:    getEnvAsBool("POLICY_LOCKOUT_EXTENSION_ENABLED", defaults.LockoutExtensionEnabled),
		ExtendLockoutDurationHours: getEnvAsInt("POLICY_EXTEND_LOCKOUT_DURATION_HOURS", defaults.ExtendLockoutDurationHours),
		CustomErrorMessage:         getEnv("POLICY_CUSTOM_ERROR_MESSAGE", defaults.CustomErrorMessage),
		BlacklistMessage:           getEnv("POLICY_BLACKLIST_MESSAGE", defaults.BlacklistMessage),
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "loginguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			Env:               env,
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies:    getEnvAsList("TRUSTED_PROXIES"),
			RequestsPerMinute: getEnvAsInt("SERVER_REQUESTS_PER_MINUTE", 600),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "./loginguard.db"),
		},
		Policy: PolicyConfig{
			Defaults: policyDefaults,
			File:     getEnv("POLICY_FILE", ""),
			Watch:    getEnvAsBool("POLICY_WATCH", false),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
			TokenExpiry:  getEnvAsDuration("ADMIN_TOKEN_EXPIRY", 15*time.Minute),

			LoginDelayBaseMs:   getEnvAsInt("ADMIN_LOGIN_DELAY_BASE_MS", 300),
			LoginDelayRandomMs: getEnvAsInt("ADMIN_LOGIN_DELAY_RANDOM_MS", 100),
		},
		Notify: NotifyConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("NOTIFY_EMAIL_FROM", ""),
			ToAddress:   getEnv("NOTIFY_EMAIL_TO", ""),
		},
		Cleanup: CleanupConfig{
			RetentionPeriod: getEnvAsDuration("RETENTION_PERIOD", 90*24*time.Hour),
			Interval:        getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
	}

	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	case StoreDriverSQLite, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory (got %q)", cfg.Store.Driver)
	}

	if err := cfg.Policy.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid POLICY_* settings: %w", err)
	}

	if cfg.Admin.Enabled() {
		if !pkgauth.IsBcryptHash(cfg.Admin.PasswordHash) {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash")
		}
		if err := validateJWTSecret(cfg.Admin.JWTSecret, env); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

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

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}
