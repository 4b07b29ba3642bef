package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

var (
	// ErrInvalidConfig wraps every validation failure reported by Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrConfigParse wraps a variable that could not be parsed.
	ErrConfigParse = errors.New("parse config")
	errEnvFile     = errors.New("load env file")
)

type Config struct {
	AppEnv          string
	HTTPAddr        string
	PublicBaseURL   string
	ShutdownTimeout time.Duration
	LogLevel        string

	DatabaseDriver string
	DatabaseURL    string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	JWTIssuer              string
	JWTAudience            string
	JWTAccessSecret        string
	JWTVerificationSecret  string
	JWTPasswordResetSecret string
	RefreshTokenPepper     string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	RefreshReuseRetention  time.Duration
	EmailVerificationTTL   time.Duration
	PasswordResetTTL       time.Duration
	BcryptCost             int
	RequireEmailVerified   bool
	MaxActiveSessions      int
	RefreshBindDevice      bool
	SweepInterval          time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSampleRatio      float64
}

// Load reads configuration from the environment. Env files only fill
// variables that are not already set. Without explicit files a missing .env
// is ignored.
func Load(envFiles ...string) (*Config, error) {
	cfg, err := load(envFiles)
	profile := os.Getenv("APP_ENV")
	if err != nil {
		recordConfigValidationEvent(context.Background(), profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), profile, "success", "none")
	return cfg, nil
}

func load(envFiles []string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("%w: %w", errEnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", errEnvFile, err)
	}
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	p := &envParser{}
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		RedisEnabled:  p.bool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "commerce_auth"),

		JWTIssuer:              getEnv("JWT_ISSUER", "commerce-auth-service"),
		JWTAudience:            getEnv("JWT_AUDIENCE", "commerce-api"),
		JWTAccessSecret:        os.Getenv("JWT_ACCESS_SECRET"),
		JWTVerificationSecret:  os.Getenv("JWT_EMAIL_VERIFICATION_SECRET"),
		JWTPasswordResetSecret: os.Getenv("JWT_PASSWORD_RESET_SECRET"),
		RefreshTokenPepper:     os.Getenv("REFRESH_TOKEN_PEPPER"),
		AccessTokenTTL:         p.duration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTokenTTL:        p.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RefreshReuseRetention:  p.duration("REFRESH_REUSE_RETENTION", 7*24*time.Hour),
		EmailVerificationTTL:   p.duration("EMAIL_VERIFICATION_TTL", 24*time.Hour),
		PasswordResetTTL:       p.duration("PASSWORD_RESET_TTL", 15*time.Minute),
		BcryptCost:             p.int("BCRYPT_COST", 12),
		RequireEmailVerified:   p.bool("AUTH_REQUIRE_EMAIL_VERIFIED", true),
		MaxActiveSessions:      p.int("AUTH_MAX_ACTIVE_SESSIONS", 5),
		RefreshBindDevice:      p.bool("REFRESH_BIND_DEVICE", false),
		SweepInterval:          p.duration("SWEEP_INTERVAL", time.Hour),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "commerce-auth-service"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", getEnv("APP_ENV", "development")),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        p.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.bool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
		OTELTraceSampleRatio:      p.float("OTEL_TRACE_SAMPLE_RATIO", 1.0),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		problems = append(problems, "DATABASE_DRIVER must be postgres or sqlite")
	}

	secrets := []struct {
		name  string
		value string
	}{
		{"JWT_ACCESS_SECRET", c.JWTAccessSecret},
		{"JWT_EMAIL_VERIFICATION_SECRET", c.JWTVerificationSecret},
		{"JWT_PASSWORD_RESET_SECRET", c.JWTPasswordResetSecret},
		{"REFRESH_TOKEN_PEPPER", c.RefreshTokenPepper},
	}
	for i, s := range secrets {
		if len(s.value) < minSecretLength {
			problems = append(problems, fmt.Sprintf("%s must be at least %d bytes", s.name, minSecretLength))
			continue
		}
		for _, other := range secrets[:i] {
			if other.value == s.value {
				problems = append(problems, fmt.Sprintf("%s must differ from %s", s.name, other.name))
			}
		}
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.EmailVerificationTTL <= 0 || c.PasswordResetTTL <= 0 {
		problems = append(problems, "token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		problems = append(problems, "JWT_ACCESS_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	if c.RefreshReuseRetention < 0 {
		problems = append(problems, "REFRESH_REUSE_RETENTION must not be negative")
	}
	if c.BcryptCost < 10 || c.BcryptCost > 31 {
		problems = append(problems, "BCRYPT_COST must be between 10 and 31")
	}
	if c.MaxActiveSessions < 0 {
		problems = append(problems, "AUTH_MAX_ACTIVE_SESSIONS must not be negative")
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, "SWEEP_INTERVAL must be positive")
	}
	if c.OTELTraceSampleRatio < 0 || c.OTELTraceSampleRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLE_RATIO must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// envParser keeps the first parse failure so fromEnv can read every key
// before reporting.
type envParser struct{ err error }

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %w", ErrConfigParse, key, err)
	}
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *envParser) int(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *envParser) bool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *envParser) float(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}
