package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment   string // dev, prod
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Google        GoogleConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
	Swagger       SwaggerConfig
}

// ServerConfig holds transport configuration. The gRPC listener is
// conventionally Port+1.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// RequestTimeout is the default deadline applied when the caller
	// supplies none.
	RequestTimeout time.Duration
}

// GRPCPort returns the gRPC listener port (HTTP port + 1 by convention).
func (s ServerConfig) GRPCPort() int { return s.Port + 1 }

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MinOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the blacklist/nonce store configuration
type RedisConfig struct {
	URL string
}

// JWTConfig holds token-service configuration. Key material is loaded
// once at startup; rotation requires a restart.
type JWTConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	AccessExpiry   time.Duration
	RefreshExpiry  time.Duration
	Issuer         string
	Audience       string
}

// GoogleConfig holds the social-login provider configuration
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Enabled      bool
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins        []string
	RequireSignatures     bool
	TrustInternalServices bool
	AdminAPIKey           string
	EncryptionKey         string
	Argon2Memory          uint32
	Argon2Iterations      uint32
	Argon2Parallelism     uint8
	Argon2SaltLength      uint32
	Argon2KeyLength       uint32
	LockoutMaxAttempts    int
	LockoutDuration       time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// SwaggerConfig holds the API-docs exposure switch
type SwaggerConfig struct {
	Mode string // public, authenticated, disabled
}

// Bucket is a rate-limit quota: Attempts per Window.
type Bucket struct {
	Attempts int
	Window   time.Duration
}

// RateLimitConfig holds the per-endpoint buckets
type RateLimitConfig struct {
	Login         Bucket
	Register      Bucket
	PasswordReset Bucket
}

// Load loads configuration from environment variables. A local .env
// file, if present, seeds variables that are not already set.
func Load() (*Config, error) {
	loadDotEnv(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "dev"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           parseInt("PORT", 8080),
			ReadTimeout:    parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:   parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:    parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RequestTimeout: parseDuration("SERVER_REQUEST_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "trustfabric"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "trustfabric"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MinOpenConns:    parseInt("DB_MIN_OPEN_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		JWT: JWTConfig{
			PrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
			PublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", ""),
			AccessExpiry:   time.Duration(parseInt("JWT_ACCESS_EXPIRY_MIN", 15)) * time.Minute,
			RefreshExpiry:  time.Duration(parseInt("JWT_REFRESH_EXPIRY_DAYS", 30)) * 24 * time.Hour,
			Issuer:         getEnv("JWT_ISSUER", "trustfabric"),
			Audience:       getEnv("JWT_AUDIENCE", "trustfabric"),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
			Enabled:      parseBool("GOOGLE_LOGIN_ENABLED", false),
		},
		Security: SecurityConfig{
			AllowedOrigins:        splitList(getEnv("SECURITY_ALLOWED_ORIGINS", "")),
			RequireSignatures:     parseBool("SECURITY_REQUIRE_SIGNATURES", false),
			TrustInternalServices: parseBool("SECURITY_TRUST_INTERNAL_SERVICES", false),
			AdminAPIKey:           getEnv("SECURITY_ADMIN_API_KEY", ""),
			EncryptionKey:         getEnv("SECURITY_ENCRYPTION_KEY", ""),
			Argon2Memory:          uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:      uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:     uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:      uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:       uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
			LockoutMaxAttempts:    parseInt("SECURITY_LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:       parseDuration("SECURITY_LOCKOUT_DURATION", "15m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("SERVICE_NAME", "trustfabric"),
			ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),
		},
		Swagger: SwaggerConfig{
			Mode: getEnv("SWAGGER_ENABLED", "disabled"),
		},
		RateLimit: RateLimitConfig{
			Login: Bucket{
				Attempts: parseInt("RATE_LIMIT_LOGIN_ATTEMPTS", 5),
				Window:   parseDuration("RATE_LIMIT_LOGIN_WINDOW", "15m"),
			},
			Register: Bucket{
				Attempts: parseInt("RATE_LIMIT_REGISTER_ATTEMPTS", 3),
				Window:   parseDuration("RATE_LIMIT_REGISTER_WINDOW", "1h"),
			},
			PasswordReset: Bucket{
				Attempts: parseInt("RATE_LIMIT_PASSWORD_RESET_ATTEMPTS", 3),
				Window:   parseDuration("RATE_LIMIT_PASSWORD_RESET_WINDOW", "1h"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration. Failing validation aborts boot.
func (c *Config) Validate() error {
	if c.Environment != "dev" && c.Environment != "prod" {
		return fmt.Errorf("ENVIRONMENT must be dev or prod, got %q", c.Environment)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65534 {
		return fmt.Errorf("PORT must be in (0, 65534], got %d", c.Server.Port)
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.JWT.PrivateKeyPath == "" || c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH are required")
	}
	if c.JWT.AccessExpiry <= 0 {
		return fmt.Errorf("JWT_ACCESS_EXPIRY_MIN must be > 0")
	}
	if c.JWT.RefreshExpiry <= 0 {
		return fmt.Errorf("JWT_REFRESH_EXPIRY_DAYS must be > 0")
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("SECURITY_ENCRYPTION_KEY is required")
	}
	if c.Google.Enabled && (c.Google.ClientID == "" || c.Google.ClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required when social login is enabled")
	}
	switch c.Swagger.Mode {
	case "public", "authenticated", "disabled":
	default:
		return fmt.Errorf("SWAGGER_ENABLED must be public, authenticated or disabled, got %q", c.Swagger.Mode)
	}

	if c.Environment == "prod" {
		for _, origin := range c.Security.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("SECURITY_ALLOWED_ORIGINS must not contain '*' in prod")
			}
		}
		if c.Swagger.Mode == "public" {
			slog.Warn("swagger is publicly exposed in prod")
		}
	}

	for _, b := range []Bucket{c.RateLimit.Login, c.RateLimit.Register, c.RateLimit.PasswordReset} {
		if b.Attempts <= 0 || b.Window <= 0 {
			return fmt.Errorf("rate limit buckets require positive attempts and window")
		}
	}

	return nil
}

// loadDotEnv seeds the environment from a KEY=VALUE file. Existing
// variables win; the file is a developer convenience only.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
