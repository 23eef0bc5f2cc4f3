package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cfg is the global configuration loaded at startup.
var Cfg Config

// Config holds all application configuration.
type Config struct {
	// Server
	Port     string
	BaseURL  string
	LogLevel string

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string

	// Rate limiter
	RateLimitRPS   int
	RateLimitBurst int

	GzipEnabled bool
	AdminAPIKey string
	UserAgent   string
	// DevMode opens the admin routes when ADMIN_API_KEY is unset.
	DevMode bool

	// Office 365 (Azure AD)
	AzureClientID     string
	AzureTenantID     string
	AzureClientSecret string
	AzureRedirectURI  string

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string // memory|redis
	RedisURL      string

	// EcoleDirecte
	EDApipBaseURL   string
	EDApiBaseURL    string
	EDApiVersion    string
	EDUserToken     string
	EDUserID        string
	EDIdentifiant   string
	EDMotDePasse    string
	UpstreamTimeout time.Duration

	// Retry policy around EcoleDirecte calls
	RetryMaxAttempts int
	RetryDelay       time.Duration

	// Attendance
	ScanPolicy string // room|class
	Timezone   string
}

// Load reads .env (if present) and populates Cfg from environment variables.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables")
	}
	Cfg = FromEnv()
	log.Printf("config: loaded (port=%s, policy=%s, sessions=%s, ecoledirecte=%s)",
		Cfg.Port, Cfg.ScanPolicy, Cfg.SessionStore, maskEmpty(Cfg.EDApipBaseURL))
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() Config {
	return Config{
		Port:     envOr("PORT", "3000"),
		BaseURL:  envOr("BASE_URL", "http://localhost:3000"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "production"),
		SentryRelease:     envOr("SENTRY_RELEASE", "sac@1.0.0"),

		RateLimitRPS:   envInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 30),

		GzipEnabled: envBool("GZIP_ENABLED", true),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		DevMode:     envBool("DEV_MODE", false),
		UserAgent:   envOr("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"),

		AzureClientID:     os.Getenv("AZURE_CLIENT_ID"),
		AzureTenantID:     os.Getenv("AZURE_TENANT_ID"),
		AzureClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
		AzureRedirectURI:  envOr("AZURE_REDIRECT_URI", "http://localhost:3000/api/auth/redirect"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    envDuration("SESSION_TTL", 180*24*time.Hour),
		SessionStore:  strings.ToLower(envOr("SESSION_STORE", "memory")),
		RedisURL:      envOr("REDIS_URL", "redis://localhost:6379/0"),

		EDApipBaseURL:   strings.TrimRight(os.Getenv("ECOLEDIRECTE_APIP_BASE_URL"), "/"),
		EDApiBaseURL:    strings.TrimRight(os.Getenv("ECOLEDIRECTE_API_BASE_URL"), "/"),
		EDApiVersion:    envOr("ECOLEDIRECTE_API_VERSION", "4.87.0"),
		EDUserToken:     os.Getenv("ECOLEDIRECTE_USER_TOKEN"),
		EDUserID:        os.Getenv("ECOLEDIRECTE_USER_ID"),
		EDIdentifiant:   os.Getenv("ECOLEDIRECTE_IDENTIFIANT"),
		EDMotDePasse:    os.Getenv("ECOLEDIRECTE_MDP"),
		UpstreamTimeout: envDuration("UPSTREAM_TIMEOUT", 15*time.Second),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryDelay:       envDuration("RETRY_DELAY", 500*time.Millisecond),

		ScanPolicy: strings.ToLower(envOr("SCAN_POLICY", "room")),
		Timezone:   envOr("TIMEZONE", "Europe/Paris"),
	}
}

// Validate reports every missing setting the HTTP service cannot run without.
func (c Config) Validate() error {
	var errs []error
	required := map[string]string{
		"AZURE_CLIENT_ID":            c.AzureClientID,
		"AZURE_TENANT_ID":            c.AzureTenantID,
		"AZURE_CLIENT_SECRET":        c.AzureClientSecret,
		"SESSION_SECRET":             c.SessionSecret,
		"ECOLEDIRECTE_APIP_BASE_URL": c.EDApipBaseURL,
	}
	for _, key := range []string{"AZURE_CLIENT_ID", "AZURE_TENANT_ID", "AZURE_CLIENT_SECRET", "SESSION_SECRET", "ECOLEDIRECTE_APIP_BASE_URL"} {
		if required[key] == "" {
			errs = append(errs, errors.New("config: "+key+" is not set"))
		}
	}
	if c.EDUserToken == "" && (c.EDIdentifiant == "" || c.EDMotDePasse == "") {
		errs = append(errs, errors.New("config: set ECOLEDIRECTE_USER_TOKEN or ECOLEDIRECTE_IDENTIFIANT/ECOLEDIRECTE_MDP"))
	}
	if c.SessionStore != "memory" && c.SessionStore != "redis" {
		errs = append(errs, errors.New("config: SESSION_STORE must be memory or redis"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("config: RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

// Location returns the timetable time zone, falling back to local time.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("config: unknown TIMEZONE %q, using local time", c.Timezone)
		return time.Local
	}
	return loc
}

func maskEmpty(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
