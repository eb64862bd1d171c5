package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Port           string
	Origin         string
	Environment    string
	LogLevel       string
	AppURL         string
	Database       DatabaseConfig
	Ledger         LedgerConfig
	Engine         EngineConfig
	Feedback       FeedbackConfig
	Share          ShareConfig
	StorageTimeout time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	URL      string
	DSN      string
}

// LedgerConfig selects where dose events are appended
type LedgerConfig struct {
	Backend string
	Path    string
}

// EngineConfig tunes the adherence computation
type EngineConfig struct {
	Timezone     string
	Location     *time.Location
	LookbackDays int
	HorizonDays  int
	GracePeriod  time.Duration
}

// FeedbackConfig selects the feedback message provider
type FeedbackConfig struct {
	Provider     string
	Timeout      time.Duration
	GeminiAPIKey string
	GeminiModel  string
	GeminiURL    string
}

// ShareConfig signs the patient share links written to NFC tags
type ShareConfig struct {
	Secret      string
	ExpiryHours int
}

const defaultShareSecret = "default_share_secret"

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3001")
	v.SetDefault("ORIGIN", "http://localhost:4200")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_URL", "http://localhost:3001")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USERNAME", "root")
	v.SetDefault("DB_NAME", "theralink")
	v.SetDefault("LEDGER_BACKEND", "database")
	v.SetDefault("LEDGER_PATH", "data/ledger")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("LOOKBACK_DAYS", 30)
	v.SetDefault("SCHEDULE_HORIZON_DAYS", 7)
	v.SetDefault("GRACE_PERIOD", "24h")
	v.SetDefault("FEEDBACK_PROVIDER", "rules")
	v.SetDefault("FEEDBACK_TIMEOUT", "3s")
	v.SetDefault("GEMINI_MODEL", "gemini-pro")
	v.SetDefault("GEMINI_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("STORAGE_TIMEOUT", "5s")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("SHARE_TOKEN_SECRET", defaultShareSecret)
	v.SetDefault("SHARE_TOKEN_EXPIRY_HOURS", 720)

	dbConfig := DatabaseConfig{
		Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		Username: v.GetString("DB_USERNAME"),
		Password: v.GetString("DB_PASSWORD"),
		Name:     v.GetString("DB_NAME"),
		URL:      v.GetString("DATABASE_URL"),
	}
	dbConfig.DSN = dbConfig.buildDSN()

	engine := EngineConfig{
		Timezone:     v.GetString("TIMEZONE"),
		LookbackDays: v.GetInt("LOOKBACK_DAYS"),
		HorizonDays:  v.GetInt("SCHEDULE_HORIZON_DAYS"),
		GracePeriod:  v.GetDuration("GRACE_PERIOD"),
	}
	loc, err := time.LoadLocation(engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	engine.Location = loc

	return &Config{
		Port:        v.GetString("PORT"),
		Origin:      v.GetString("ORIGIN"),
		Environment: v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		AppURL:      strings.TrimRight(v.GetString("APP_URL"), "/"),
		Database:    dbConfig,
		Ledger: LedgerConfig{
			Backend: strings.ToLower(v.GetString("LEDGER_BACKEND")),
			Path:    v.GetString("LEDGER_PATH"),
		},
		Engine: engine,
		Feedback: FeedbackConfig{
			Provider:     strings.ToLower(v.GetString("FEEDBACK_PROVIDER")),
			Timeout:      v.GetDuration("FEEDBACK_TIMEOUT"),
			GeminiAPIKey: v.GetString("GEMINI_API_KEY"),
			GeminiModel:  v.GetString("GEMINI_MODEL"),
			GeminiURL:    v.GetString("GEMINI_URL"),
		},
		Share: ShareConfig{
			Secret:      v.GetString("SHARE_TOKEN_SECRET"),
			ExpiryHours: v.GetInt("SHARE_TOKEN_EXPIRY_HOURS"),
		},
		StorageTimeout: v.GetDuration("STORAGE_TIMEOUT"),
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
	}, nil
}

// buildDSN prefers DATABASE_URL and otherwise assembles a DSN for the driver.
// Sessions always run in UTC; a DATABASE_URL without a zone gets one.
func (d DatabaseConfig) buildDSN() string {
	if d.URL != "" {
		return d.withUTC(d.URL)
	}
	switch d.Driver {
	case "postgres":
		port := d.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			d.Host, d.Username, d.Password, d.Name, port)
	case "mysql":
		port := d.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.Username, d.Password, d.Host, port, d.Name)
	}
	return ""
}

func (d DatabaseConfig) withUTC(dsn string) string {
	lower := strings.ToLower(dsn)
	switch d.Driver {
	case "postgres":
		if strings.Contains(lower, "timezone=") {
			return dsn
		}
		if !strings.Contains(dsn, "://") {
			return dsn + " TimeZone=UTC"
		}
		return addQueryParam(dsn, "TimeZone=UTC")
	case "mysql":
		if !strings.Contains(lower, "parsetime=") {
			dsn = addQueryParam(dsn, "parseTime=True")
		}
		if !strings.Contains(lower, "loc=") {
			dsn = addQueryParam(dsn, "loc=UTC")
		}
	}
	return dsn
}

func addQueryParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks that the configuration is usable before anything is
// opened or served.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be \"mysql\", \"postgres\" or \"memory\", got %q", c.Database.Driver)
	}
	switch c.Ledger.Backend {
	case "database":
	case "leveldb":
		if c.Ledger.Path == "" {
			return fmt.Errorf("LEDGER_PATH is required when LEDGER_BACKEND is \"leveldb\"")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be \"database\" or \"leveldb\", got %q", c.Ledger.Backend)
	}
	if c.Engine.LookbackDays <= 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive, got %d", c.Engine.LookbackDays)
	}
	if c.Engine.HorizonDays <= 0 {
		return fmt.Errorf("SCHEDULE_HORIZON_DAYS must be positive, got %d", c.Engine.HorizonDays)
	}
	if c.Engine.GracePeriod <= 0 {
		return fmt.Errorf("GRACE_PERIOD must be positive, got %s", c.Engine.GracePeriod)
	}
	switch c.Feedback.Provider {
	case "rules":
	case "gemini":
		if c.Feedback.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when FEEDBACK_PROVIDER is \"gemini\"")
		}
	default:
		return fmt.Errorf("FEEDBACK_PROVIDER must be \"rules\" or \"gemini\", got %q", c.Feedback.Provider)
	}
	if c.Feedback.Timeout <= 0 || c.StorageTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("FEEDBACK_TIMEOUT, STORAGE_TIMEOUT and REQUEST_TIMEOUT must be positive")
	}
	if c.Share.ExpiryHours <= 0 {
		return fmt.Errorf("SHARE_TOKEN_EXPIRY_HOURS must be positive, got %d", c.Share.ExpiryHours)
	}
	if c.IsProduction() && (c.Share.Secret == "" || c.Share.Secret == defaultShareSecret) {
		return fmt.Errorf("SHARE_TOKEN_SECRET must be set in production")
	}
	return nil
}
