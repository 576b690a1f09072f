package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/csrf"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/ratelimit"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rules"
	"github.com/platinummonkey/tenantguard/pkg/session"
	"github.com/platinummonkey/tenantguard/pkg/validation"
)

// Prefix is prepended to every environment variable name.
const Prefix = "TENANTGUARD_"

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendOIDC   = "oidc"
	BackendSQL    = "sql"
	SourceFile    = "file"
	SourceS3      = "s3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	RateLimit     RateLimitConfig
	CSRF          csrf.Config
	Session       SessionConfig
	Authorization rbac.Config
	Memberships   MembershipConfig
	Validation    ValidationConfig
	Redis         RedisConfig
	Rules         RulesConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RateLimitConfig selects the counter backend and its limits.
type RateLimitConfig struct {
	Limiter ratelimit.Config
	// Backend is memory or redis.
	Backend string
	// SweepInterval is how often expired in-memory buckets are removed.
	SweepInterval time.Duration
	// TrustedProxies lists the CIDRs or IPs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is used.
	TrustedProxies []string
}

// SessionConfig selects the session verifier.
type SessionConfig struct {
	Authenticator session.Config
	// Verifier is redis or oidc.
	Verifier string
	// TTL of server-side sessions in Redis.
	TTL  time.Duration
	OIDC session.OIDCConfig
}

// MembershipConfig selects the membership store.
type MembershipConfig struct {
	// Backend is sql or memory.
	Backend     string
	PostgresDSN string
	// MaxOpenConns bounds the SQL connection pool.
	MaxOpenConns int
}

// ValidationConfig bounds request bodies.
type ValidationConfig struct {
	MaxBodyBytes int64
}

// RedisConfig holds the shared Redis connection settings.
type RedisConfig struct {
	URL      string
	Password string
	// DB overrides the database in URL when >= 0.
	DB       int
	PoolSize int
}

// RulesConfig locates the declarative access rules.
type RulesConfig struct {
	// Source is file or s3. Empty disables rule evaluation.
	Source    string
	Path      string
	Watch     bool
	S3        rules.S3Config
	CacheSize int
}

// AuditConfig controls where audit events go besides the log.
type AuditConfig struct {
	Dir      string
	MaxSize  int64
	MaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// OTel converts the settings for observability.InitOTel.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	obs, err := loadObservabilityConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := &Config{
		Server:        loadServerConfig(),
		RateLimit:     loadRateLimitConfig(),
		CSRF:          loadCSRFConfig(),
		Session:       loadSessionConfig(),
		Authorization: loadAuthorizationConfig(),
		Memberships:   loadMembershipConfig(),
		Validation:    ValidationConfig{MaxBodyBytes: getEnvInt64("MAX_BODY_BYTES", validation.DefaultMaxBytes)},
		Redis:         loadRedisConfig(),
		Rules:         loadRulesConfig(),
		Audit:         loadAuditConfig(),
		Observability: obs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	limiter := ratelimit.DefaultConfig()
	limiter.Max = getEnvInt("RATE_LIMIT_MAX", limiter.Max)
	limiter.Window = getEnvDuration("RATE_LIMIT_WINDOW", limiter.Window)
	limiter.KeyPrefix = getEnv("RATE_LIMIT_KEY_PREFIX", "api:")
	return RateLimitConfig{
		Limiter:        limiter,
		Backend:        strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
		SweepInterval:  getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
	}
}

func loadCSRFConfig() csrf.Config {
	cfg := csrf.DefaultConfig()
	cfg.CookieName = getEnv("CSRF_COOKIE_NAME", cfg.CookieName)
	cfg.HeaderName = getEnv("CSRF_HEADER_NAME", cfg.HeaderName)
	cfg.TokenLength = getEnvInt("CSRF_TOKEN_LENGTH", cfg.TokenLength)
	cfg.Cookie.Path = getEnv("CSRF_COOKIE_PATH", cfg.Cookie.Path)
	cfg.Cookie.Domain = getEnv("CSRF_COOKIE_DOMAIN", cfg.Cookie.Domain)
	cfg.Cookie.Secure = getEnvBool("CSRF_COOKIE_SECURE", cfg.Cookie.Secure)
	cfg.Cookie.MaxAge = getEnvDuration("CSRF_COOKIE_MAX_AGE", cfg.Cookie.MaxAge)
	cfg.Cookie.SameSite = parseSameSite(getEnv("CSRF_COOKIE_SAMESITE", "strict"))
	return cfg
}

func loadSessionConfig() SessionConfig {
	authn := session.DefaultConfig()
	authn.CookieName = getEnv("SESSION_COOKIE_NAME", authn.CookieName)
	authn.Timeout = getEnvDuration("SESSION_TIMEOUT", authn.Timeout)
	authn.AllowBearer = getEnvBool("SESSION_ALLOW_BEARER", false)
	return SessionConfig{
		Authenticator: authn,
		Verifier:      strings.ToLower(getEnv("SESSION_VERIFIER", BackendRedis)),
		TTL:           getEnvDuration("SESSION_TTL", 24*time.Hour),
		OIDC: session.OIDCConfig{
			IssuerURL:  getEnv("OIDC_ISSUER_URL", ""),
			ClientID:   getEnv("OIDC_CLIENT_ID", ""),
			RolesClaim: getEnv("OIDC_ROLES_CLAIM", "roles"),
		},
	}
}

func loadAuthorizationConfig() rbac.Config {
	cfg := rbac.DefaultConfig()
	cfg.Timeout = getEnvDuration("AUTHZ_TIMEOUT", cfg.Timeout)
	cfg.OrgParam = getEnv("AUTHZ_ORG_PARAM", cfg.OrgParam)
	return cfg
}

func loadMembershipConfig() MembershipConfig {
	return MembershipConfig{
		Backend:      strings.ToLower(getEnv("MEMBERSHIP_BACKEND", BackendSQL)),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),
		MaxOpenConns: getEnvInt("POSTGRES_MAX_CONNS", 20),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", -1),
		PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
	}
}

func loadRulesConfig() RulesConfig {
	return RulesConfig{
		Source: strings.ToLower(getEnv("RULES_SOURCE", "")),
		Path:   getEnv("RULES_PATH", ""),
		Watch:  getEnvBool("RULES_WATCH", true),
		S3: rules.S3Config{
			Bucket:       getEnv("RULES_S3_BUCKET", ""),
			Key:          getEnv("RULES_S3_KEY", "rules.yaml"),
			Region:       getEnv("RULES_S3_REGION", "us-east-1"),
			Endpoint:     getEnv("RULES_S3_ENDPOINT", ""),
			UsePathStyle: getEnvBool("RULES_S3_USE_PATH_STYLE", false),
			AccessKey:    getEnv("RULES_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("RULES_S3_SECRET_KEY", ""),
			PollInterval: getEnvDuration("RULES_S3_POLL_INTERVAL", time.Minute),
		},
		CacheSize: getEnvInt("RULES_CACHE_SIZE", rules.DefaultCacheSize),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Dir:      getEnv("AUDIT_DIR", ""),
		MaxSize:  getEnvInt64("AUDIT_MAX_SIZE", 100<<20),
		MaxFiles: getEnvInt("AUDIT_MAX_FILES", 10),
	}
}

func loadObservabilityConfig() (ObservabilityConfig, error) {
	level, err := observability.ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return ObservabilityConfig{}, err
	}
	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "tenantguard"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
	}, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	if c.RateLimit.Limiter.Max <= 0 {
		return errors.New("rate limit max must be positive")
	}
	if c.RateLimit.Limiter.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	switch c.RateLimit.Backend {
	case BackendMemory:
		if c.RateLimit.SweepInterval <= 0 {
			return errors.New("rate limit sweep interval must be positive")
		}
	case BackendRedis:
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}
	if _, err := httputil.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return err
	}

	if c.CSRF.TokenLength < auth.MinTokenBytes {
		return fmt.Errorf("csrf token length must be at least %d bytes", auth.MinTokenBytes)
	}

	switch c.Session.Verifier {
	case BackendRedis:
	case BackendOIDC:
		if c.Session.OIDC.IssuerURL == "" || c.Session.OIDC.ClientID == "" {
			return errors.New("oidc issuer url and client id are required for the oidc verifier")
		}
	default:
		return fmt.Errorf("invalid session verifier: %s (must be redis or oidc)", c.Session.Verifier)
	}
	if c.Session.Authenticator.Timeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	if c.Authorization.Timeout <= 0 {
		return errors.New("authorization timeout must be positive")
	}

	switch c.Memberships.Backend {
	case BackendMemory:
	case BackendSQL:
		if c.Memberships.PostgresDSN == "" {
			return errors.New("postgres DSN is required for the sql membership backend")
		}
	default:
		return fmt.Errorf("invalid membership backend: %s (must be sql or memory)", c.Memberships.Backend)
	}

	if c.Validation.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	if c.UsesRedis() && c.Redis.URL == "" {
		return errors.New("redis URL is required")
	}

	switch c.Rules.Source {
	case "":
	case SourceFile:
		if c.Rules.Path == "" {
			return errors.New("rules path is required for the file rules source")
		}
	case SourceS3:
		if c.Rules.S3.Bucket == "" || c.Rules.S3.Key == "" {
			return errors.New("S3 bucket and key are required for the s3 rules source")
		}
	default:
		return fmt.Errorf("invalid rules source: %s (must be file or s3)", c.Rules.Source)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// UsesRedis reports whether any component needs the Redis client.
func (c *Config) UsesRedis() bool {
	return c.RateLimit.Backend == BackendRedis || c.Session.Verifier == BackendRedis
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// getEnv returns a prefixed environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(Prefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as trimmed,
// non-empty entries
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(Prefix+key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(Prefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(Prefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(Prefix + key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(Prefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
