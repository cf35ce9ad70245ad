package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Profile cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendMongo  = "mongo"
	CacheBackendRedis  = "redis"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Ledger    LedgerConfig
	Signer    SignerConfig
	Dashboard DashboardConfig
	Cache     CacheConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Reporting ReportingConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// LedgerConfig describes how to reach the ledger gateway and how to await confirmations.
type LedgerConfig struct {
	GatewayURL          string
	APIKey              string
	Timeout             time.Duration
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
	CurrencyDecimals    int32
	CurrencySymbol      string
}

// SignerConfig points at the identity/signing provider.
type SignerConfig struct {
	URL    string
	APIKey string
}

// DashboardConfig holds the reconciliation layer tunables.
type DashboardConfig struct {
	PageSize          int
	LowStockThreshold int64
	JoinConcurrency   int
	Timezone          string
	PhoneRegion       string
}

// CacheConfig selects the profile cache backend.
type CacheConfig struct {
	Backend string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig holds settings for Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Recipient    string
	// Producer defaults to the connected session's address when empty.
	Producer string
	Archive  bool
}

// MongoEnabled reports whether a MongoDB connection is needed.
func (c *Config) MongoEnabled() bool {
	return c.Cache.Backend == CacheBackendMongo || c.Reporting.Archive
}

// RedisEnabled reports whether a Redis connection is needed.
func (c *Config) RedisEnabled() bool {
	return c.Cache.Backend == CacheBackendRedis || c.Redis.Addr != ""
}

// WhatsAppConfig contains credentials for the Meta WhatsApp Cloud API. Optional.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
}

// Enabled reports whether digest delivery over WhatsApp is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// SheetsConfig contains configuration required to export to Google Sheets. Optional.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	LedgerRange     string
}

// Enabled reports whether the Google Sheets export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	var parseErrs []error
	duration := func(key string, fallback time.Duration) time.Duration {
		v, err := getenvDuration(key, fallback)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}
	integer := func(key string, fallback int) int {
		v, err := getenvInt(key, fallback)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}

	boolean := func(key string, fallback bool) bool {
		v, err := getenvBool(key, fallback)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getenvWithDefault("APP_PORT", "8080"),
			LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Ledger: LedgerConfig{
			GatewayURL:          os.Getenv("LEDGER_GATEWAY_URL"),
			APIKey:              os.Getenv("LEDGER_API_KEY"),
			Timeout:             duration("LEDGER_TIMEOUT", 15*time.Second),
			ConfirmPollInterval: duration("LEDGER_CONFIRM_POLL_INTERVAL", 2*time.Second),
			ConfirmTimeout:      duration("LEDGER_CONFIRM_TIMEOUT", 2*time.Minute),
			CurrencyDecimals:    int32(integer("LEDGER_CURRENCY_DECIMALS", 18)),
			CurrencySymbol:      getenvWithDefault("LEDGER_CURRENCY_SYMBOL", "ETH"),
		},
		Signer: SignerConfig{
			URL:    os.Getenv("SIGNER_URL"),
			APIKey: os.Getenv("SIGNER_API_KEY"),
		},
		Dashboard: DashboardConfig{
			PageSize:          integer("DASHBOARD_PAGE_SIZE", 5),
			LowStockThreshold: int64(integer("DASHBOARD_LOW_STOCK_THRESHOLD", 5)),
			JoinConcurrency:   integer("DASHBOARD_JOIN_CONCURRENCY", 8),
			Timezone:          getenvWithDefault("TIMEZONE", "Africa/Kigali"),
			PhoneRegion:       getenvWithDefault("PHONE_REGION", "RW"),
		},
		Cache: CacheConfig{
			Backend: getenvWithDefault("PROFILE_CACHE_BACKEND", CacheBackendMemory),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "farmledger"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       integer("REDIS_DB", 0),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * *"),
			Recipient:    os.Getenv("REPORT_RECIPIENT"),
			Producer:     os.Getenv("REPORT_PRODUCER_ADDRESS"),
			Archive:      boolean("REPORT_ARCHIVE", false),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			LedgerRange:     getenvWithDefault("GOOGLE_SHEET_LEDGER_RANGE", "Ledger!A:H"),
		},
	}

	if err := errors.Join(parseErrs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.Ledger.GatewayURL == "":
		return errors.New("LEDGER_GATEWAY_URL must be provided")
	case c.Signer.URL == "":
		return errors.New("SIGNER_URL must be provided")
	}

	if c.Ledger.ConfirmPollInterval <= 0 {
		return errors.New("LEDGER_CONFIRM_POLL_INTERVAL must be positive")
	}

	if c.Ledger.ConfirmTimeout < c.Ledger.ConfirmPollInterval {
		return errors.New("LEDGER_CONFIRM_TIMEOUT must not be shorter than the poll interval")
	}

	if c.Ledger.CurrencyDecimals < 0 {
		return errors.New("LEDGER_CURRENCY_DECIMALS must not be negative")
	}

	if c.Dashboard.PageSize < 1 {
		return errors.New("DASHBOARD_PAGE_SIZE must be at least 1")
	}

	if c.Dashboard.JoinConcurrency < 1 {
		return errors.New("DASHBOARD_JOIN_CONCURRENCY must be at least 1")
	}

	if _, err := time.LoadLocation(c.Dashboard.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", c.Dashboard.Timezone, err)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendMongo:
	case CacheBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR must be provided for the redis cache backend")
		}
	default:
		return fmt.Errorf("unsupported PROFILE_CACHE_BACKEND %q", c.Cache.Backend)
	}

	if c.MongoEnabled() && c.MongoDB.URI == "" {
		return errors.New("MONGODB_URI must be provided when MongoDB is used")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if c.WhatsApp.Enabled() && c.Reporting.Recipient == "" {
		return errors.New("REPORT_RECIPIENT must be provided when WhatsApp delivery is enabled")
	}

	return nil
}

// Location returns the configured dashboard time zone.
func (c DashboardConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
