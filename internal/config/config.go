package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends
const (
	BackendFile       = "file"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Config holds the application configuration
type Config struct {
	// Open Library account and client behaviour
	OpenLibraryBaseURL string        `env:"READER_OL_BASE_URL" envDefault:"https://openlibrary.org"`
	Username           string        `env:"READER_OL_USERNAME"`
	Session            string        `env:"READER_OL_SESSION"`
	UserAgent          string        `env:"READER_OL_USER_AGENT" envDefault:"reader/1.0 (+https://openlibrary.org/developers)"`
	RequestsPerSecond  int           `env:"READER_OL_RPS" envDefault:"3"`
	MaxRetries         int           `env:"READER_OL_MAX_RETRIES" envDefault:"3"`
	HTTPTimeout        time.Duration `env:"READER_HTTP_TIMEOUT" envDefault:"15s"`

	// Cache policy
	ShelfStaleAfter time.Duration `env:"READER_SHELF_STALE_AFTER" envDefault:"6h"`
	ListStaleAfter  time.Duration `env:"READER_LIST_STALE_AFTER" envDefault:"6h"`
	LoanTTL         time.Duration `env:"READER_LOAN_TTL" envDefault:"1h"`

	// Storage backend: file, sqlite, clickhouse or memory
	StorageBackend string `env:"READER_STORAGE_BACKEND" envDefault:"file"`
	DataDir        string `env:"READER_DATA_DIR" envDefault:"./data"`
	SQLiteDSN      string `env:"READER_SQLITE_DSN" envDefault:"file:reader.db?cache=shared"`

	// ClickHouse configuration (clickhouse backend only)
	ClickHouseHost     string `env:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `env:"CLICKHOUSE_PORT" envDefault:"9000"`
	ClickHouseDatabase string `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
	ClickHouseUser     string `env:"CLICKHOUSE_USER" envDefault:"default"`
	ClickHousePassword string `env:"CLICKHOUSE_PASSWORD"`
	ClickHouseUseTLS   bool   `env:"CLICKHOUSE_USE_TLS" envDefault:"false"`

	LogLevel string `env:"READER_LOG_LEVEL" envDefault:"info"`

	// Telegram front-end
	TelegramToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUserIDs []int64 `env:"ALLOWED_USER_IDS" envSeparator:","`

	// Bot mode configuration
	WebhookMode bool   `env:"WEBHOOK_MODE" envDefault:"false"` // If true, use webhook mode; if false, use polling mode
	WebhookURL  string `env:"WEBHOOK_URL"`                     // URL for webhook (required if WebhookMode is true)
	// Echoed by Telegram in X-Telegram-Bot-Api-Secret-Token (required if WebhookMode is true)
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	Port          string `env:"PORT" envDefault:"8080"`
}

// Telegram only accepts these characters in a webhook secret token
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// LoadFromEnv loads configuration from environment variables.
// Callers load .env files with godotenv beforehand.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that struct tags cannot express
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.OpenLibraryBaseURL); err != nil {
		return fmt.Errorf("invalid READER_OL_BASE_URL: %w", err)
	}
	if c.RequestsPerSecond < 1 {
		return fmt.Errorf("READER_OL_RPS must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("READER_OL_MAX_RETRIES cannot be negative")
	}
	if c.ShelfStaleAfter <= 0 || c.ListStaleAfter <= 0 || c.LoanTTL <= 0 {
		return fmt.Errorf("staleness windows must be positive")
	}

	switch c.StorageBackend {
	case BackendFile, BackendMemory:
	case BackendSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("READER_SQLITE_DSN is required for the sqlite backend")
		}
	case BackendClickHouse:
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required for the clickhouse backend")
		}
	default:
		return fmt.Errorf("unknown READER_STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// ValidateBot checks the settings the Telegram front-end needs
func (c *Config) ValidateBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(c.AllowedUserIDs) == 0 {
		return fmt.Errorf("ALLOWED_USER_IDS is required (comma-separated list of Telegram user IDs)")
	}
	if c.WebhookMode {
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
		if !webhookSecretPattern.MatchString(c.WebhookSecret) {
			return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_MODE is true (1-256 characters of A-Z, a-z, 0-9, _ and -)")
		}
	}
	return nil
}
