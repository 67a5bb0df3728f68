// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"
)

// appConfigKeys defines the configuration keys for ImpactHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: IMPACTHUB_MONGO_URI, IMPACTHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Document store: 'mongo' or 'memory'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "impact_hub", Desc: "MongoDB database name"},
	{Name: "mongo_connect_timeout", Default: "10s", Desc: "MongoDB connect and ping timeout"},

	{Name: "identity_backend", Default: BackendRedis, Desc: "Identity provider: 'redis' or 'memory'"},
	{Name: "redis_url", Default: "redis://localhost:6379/0", Desc: "Redis URL for the identity provider"},
	{Name: "identity_session_ttl", Default: "720h", Desc: "How long a sign-in lasts without renewal"},

	{Name: "session_key", Default: devSessionKey, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "impacthub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},

	{Name: "engine_idle_timeout", Default: "30m", Desc: "Release a session engine after this long without requests"},
	{Name: "engine_sweep_interval", Default: "1m", Desc: "How often idle session engines are swept"},

	{Name: "functions_base_url", Default: "", Desc: "Base URL of the callable functions server (blank means base_url)"},
	{Name: "functions_secret", Default: "", Desc: "Shared secret for callable function tokens (blank disables delivery)"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank disables email)"},
	{Name: "mail_smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@impacthub.org", Desc: "From email address"},
	{Name: "mail_from_name", Default: "ImpactHub", Desc: "From display name"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for email links and OAuth callbacks"},
	{Name: "site_name", Default: "ImpactHub", Desc: "Site name used in emails"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},

	{Name: "login_rate_limit", Default: 10, Desc: "Password sign-in attempts per client IP per minute"},
	{Name: "admin_email", Default: "", Desc: "Email of an account promoted to admin on startup"},

	// Timeouts (blank keeps the built-in default)
	{Name: "timeout_ping", Default: "", Desc: "Health check ping timeout"},
	{Name: "timeout_short", Default: "", Desc: "Single-document operation timeout"},
	{Name: "timeout_medium", Default: "", Desc: "Query and token exchange timeout"},
	{Name: "timeout_long", Default: "", Desc: "Batch operation timeout"},
	{Name: "timeout_gate", Default: "", Desc: "How long a gated request waits for auth state"},
	{Name: "timeout_delivery", Default: "", Desc: "Notification delivery call timeout"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, IMPACTHUB_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "IMPACTHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend:        strings.ToLower(appValues.String("store_backend")),
		MongoURI:            appValues.String("mongo_uri"),
		MongoDatabase:       appValues.String("mongo_database"),
		MongoConnectTimeout: appValues.Duration("mongo_connect_timeout", 10*time.Second),

		IdentityBackend:    strings.ToLower(appValues.String("identity_backend")),
		RedisURL:           appValues.String("redis_url"),
		IdentitySessionTTL: appValues.Duration("identity_session_ttl", 30*24*time.Hour),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		EngineIdleTimeout:   appValues.Duration("engine_idle_timeout", 30*time.Minute),
		EngineSweepInterval: appValues.Duration("engine_sweep_interval", time.Minute),

		FunctionsBaseURL: appValues.String("functions_base_url"),
		FunctionsSecret:  appValues.String("functions_secret"),

		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		BaseURL:  strings.TrimRight(appValues.String("base_url"), "/"),
		SiteName: appValues.String("site_name"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		LoginRateLimit: appValues.Int("login_rate_limit"),
		AdminEmail:     appValues.String("admin_email"),

		TimeoutPing:     appValues.Duration("timeout_ping", 0),
		TimeoutShort:    appValues.Duration("timeout_short", 0),
		TimeoutMedium:   appValues.Duration("timeout_medium", 0),
		TimeoutLong:     appValues.Duration("timeout_long", 0),
		TimeoutGate:     appValues.Duration("timeout_gate", 0),
		TimeoutDelivery: appValues.Duration("timeout_delivery", 0),
	}

	if appCfg.FunctionsBaseURL == "" {
		appCfg.FunctionsBaseURL = appCfg.BaseURL
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Backend choices, the MongoDB URI and the Redis URL are checked here so
// configuration errors surface before any connection attempt.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database is required with store_backend=%s", BackendMongo)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", BackendMongo, BackendMemory, appCfg.StoreBackend)
	}

	switch appCfg.IdentityBackend {
	case BackendRedis:
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("identity_backend must be %q or %q, got %q", BackendRedis, BackendMemory, appCfg.IdentityBackend)
	}

	if len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters")
	}
	if coreCfg != nil && coreCfg.Env == "prod" && appCfg.SessionKey == devSessionKey {
		return fmt.Errorf("session_key must be changed in production")
	}
	if appCfg.FunctionsSecret != "" && len(appCfg.FunctionsSecret) < 32 {
		return fmt.Errorf("functions_secret must be at least 32 characters")
	}
	if !urlutil.IsValidAbsHTTPURL(appCfg.BaseURL) {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", appCfg.BaseURL)
	}
	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		return fmt.Errorf("google_client_id and google_client_secret must be set together")
	}

	return nil
}
