// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig handles
// ports, TLS, logging and CORS; everything specific to the hub lives here.
type AppConfig struct {
	// Document store: "mongo" or "memory"
	StoreBackend        string
	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration

	// Identity provider: "redis" or "memory"
	IdentityBackend    string
	RedisURL           string
	IdentitySessionTTL time.Duration // how long a sign-in lasts without a heartbeat

	// Browser session cookie
	SessionKey    string
	SessionName   string
	SessionDomain string
	SessionMaxAge time.Duration

	// Session engines of quiet browser sessions are released after
	// EngineIdleTimeout; the sweep runs every EngineSweepInterval.
	EngineIdleTimeout   time.Duration
	EngineSweepInterval time.Duration

	// Callable functions (notification delivery). FunctionsBaseURL defaults
	// to BaseURL, i.e. the hub calls its own /functions endpoint.
	FunctionsBaseURL string
	FunctionsSecret  string

	// Email/SMTP configuration
	MailSMTPHost string
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string

	// Base URL for links in emails and the OAuth callback
	BaseURL  string
	SiteName string

	// Google OAuth configuration (sign-in is disabled when blank)
	GoogleClientID     string
	GoogleClientSecret string

	// Password sign-in attempts allowed per client IP per minute
	LoginRateLimit int

	// Account promoted to the admin role on startup
	AdminEmail string

	// Timeout overrides; zero keeps the default
	TimeoutPing     time.Duration
	TimeoutShort    time.Duration
	TimeoutMedium   time.Duration
	TimeoutLong     time.Duration
	TimeoutGate     time.Duration
	TimeoutDelivery time.Duration
}
