package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Portal   PortalConfig   `json:"portal"`
	Timeouts TimeoutConfig  `json:"timeouts"`
	Crypto   CryptoConfig   `json:"-"`
	Notify   NotifyConfig   `json:"notify"`
	Log      LogConfig      `json:"log"`
	Security SecurityConfig `json:"security"`
	Browser  BrowserConfig  `json:"browser"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"-"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	Path            string        `json:"path"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"-"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

// PortalConfig holds supplier portal configuration
type PortalConfig struct {
	ID      int64  `json:"id"`
	BaseURL string `json:"base_url"`
	// MaxNextClicks bounds how many times the listing cursor may advance.
	// Negative means unbounded.
	MaxNextClicks int `json:"max_next_clicks"`
	// Optional account configured through the environment. It is harvested
	// alongside the tenant credentials stored in the database.
	Login          string `json:"-"`
	Password       string `json:"-"`
	TenantID       int64  `json:"tenant_id"`
	ItemsLookback  int    `json:"items_lookback_days"`
	Workers        int    `json:"workers"`
	NavPerMinute   int    `json:"nav_per_minute"`
	NotifyOnFinish bool   `json:"notify_on_finish"`
}

// HasEnvAccount reports whether an account is configured through the environment.
func (p PortalConfig) HasEnvAccount() bool {
	return p.Login != "" && p.Password != ""
}

// LoginURL returns the supplier login page
func (p PortalConfig) LoginURL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/sessions/supplier_login"
}

// EventsURL returns the quotation event listing page
func (p PortalConfig) EventsURL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/quote_supplier_land"
}

// DetailURL returns the detail page of an event
func (p PortalConfig) DetailURL(eventID int64) string {
	return fmt.Sprintf("%s/quotes/external_responses/%d", strings.TrimRight(p.BaseURL, "/"), eventID)
}

// CryptoConfig holds the credential vault key
type CryptoConfig struct {
	Key string
}

// NotifyConfig holds Telegram notification configuration
type NotifyConfig struct {
	TelegramToken  string        `json:"-"`
	TelegramChatID string        `json:"chat_id"`
	TelegramURL    string        `json:"api_url"`
	Timeout        time.Duration `json:"timeout"`
}

// Enabled reports whether alerts can be delivered.
func (n NotifyConfig) Enabled() bool {
	return n.TelegramToken != "" && n.TelegramChatID != ""
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
	// APIKey guards the endpoints that start runs or clear state. Empty
	// leaves them open.
	APIKey string `json:"-"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless       bool   `json:"headless"`
	ExecPath       string `json:"exec_path"`
	UserAgent      string `json:"user_agent"`
	WindowWidth    int    `json:"window_width"`
	WindowHeight   int    `json:"window_height"`
	MaxSessions    int    `json:"max_sessions"`
	DisableSandbox bool   `json:"disable_sandbox"`
}

// LoadNotify reads only the notification section. It works when the rest of
// the configuration is invalid, so startup failures can still be reported.
func LoadNotify() NotifyConfig {
	return NotifyConfig{
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramURL:    getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		Timeout:        getEnvAsDuration("TELEGRAM_TIMEOUT", 10*time.Second),
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "quote_harvester"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			Path:            getEnv("DB_PATH", "harvester.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT", 5)) * time.Second,
			ReadTimeout:  time.Duration(getEnvAsInt("REDIS_READ_TIMEOUT", 3)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("REDIS_WRITE_TIMEOUT", 3)) * time.Second,
			CacheTTL:     time.Duration(getEnvAsInt("CACHE_TTL", 86400)) * time.Second,
		},
		Portal: PortalConfig{
			ID:             int64(getEnvAsInt("PORTAL_ID", 1)),
			BaseURL:        getEnv("PORTAL_BASE_URL", "https://vale.coupahost.com"),
			MaxNextClicks:  getEnvAsLimit("PORTAL_MAX_NEXT_CLICKS", 3),
			Login:          getEnv("PORTAL_LOGIN", ""),
			Password:       getEnv("PORTAL_PASSWORD", ""),
			TenantID:       int64(getEnvAsInt("PORTAL_TENANT_ID", 0)),
			ItemsLookback:  getEnvAsInt("ITEMS_LOOKBACK_DAYS", 10),
			Workers:        getEnvAsInt("HARVEST_WORKERS", 1),
			NavPerMinute:   getEnvAsInt("PORTAL_NAV_PER_MINUTE", 30),
			NotifyOnFinish: getEnvAsBool("NOTIFY_ON_SUCCESS", false),
		},
		Timeouts: loadTimeoutConfig(),
		Crypto: CryptoConfig{
			Key: getEnv("CRYPTO_KEY", ""),
		},
		Notify: LoadNotify(),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 100),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
				CleanupInterval:   time.Duration(getEnvAsInt("RATE_LIMIT_CLEANUP", 60)) * time.Second,
			},
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
			APIKey: getEnv("API_KEY", ""),
		},
		Browser: BrowserConfig{
			Headless:       getEnvAsBool("BROWSER_HEADLESS", true),
			ExecPath:       getEnv("BROWSER_EXEC_PATH", ""),
			UserAgent:      getEnv("BROWSER_USER_AGENT", ""),
			WindowWidth:    getEnvAsInt("BROWSER_WINDOW_WIDTH", 1366),
			WindowHeight:   getEnvAsInt("BROWSER_WINDOW_HEIGHT", 900),
			MaxSessions:    getEnvAsInt("BROWSER_MAX_SESSIONS", 4),
			DisableSandbox: getEnvAsBool("BROWSER_NO_SANDBOX", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields the harvester cannot run without
func (c *Config) Validate() error {
	if c.Crypto.Key == "" {
		return fmt.Errorf("CRYPTO_KEY is required")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if (c.Portal.Login == "") != (c.Portal.Password == "") {
		return fmt.Errorf("PORTAL_LOGIN and PORTAL_PASSWORD must be set together")
	}
	if c.Portal.Workers < 1 {
		return fmt.Errorf("HARVEST_WORKERS must be at least 1")
	}
	if c.Portal.ItemsLookback < 1 {
		return fmt.Errorf("ITEMS_LOOKBACK_DAYS must be at least 1")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsLimit reads an optional bound. "none", "unlimited" or a negative
// number disable the bound and yield -1.
func getEnvAsLimit(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "unlimited":
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	if n < 0 {
		return -1
	}
	return n
}
