package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"apartments-bot/scraper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration. Secrets and deployment knobs
// come from the environment and override the YAML file.
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	Browser  BrowserConfig  `yaml:"browser"`
	Store    StoreConfig    `yaml:"store"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Telegram TelegramConfig `yaml:"telegram"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Log      LogConfig      `yaml:"log"`
}

type CatalogConfig struct {
	URL       string            `yaml:"url"`
	Selectors scraper.Selectors `yaml:"selectors"`
	Timing    scraper.Timing    `yaml:"timing"`
}

type BrowserConfig struct {
	Bin      string `yaml:"bin"`      // CHROME_BIN
	DataDir  string `yaml:"data_dir"` // BOT_DATA_DIR
	Headless bool   `yaml:"headless"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // DATABASE_URL
}

type ScheduleConfig struct {
	Cron string `yaml:"cron"`
	// ReplaceOnEmpty lets a run that found nothing clear the stored snapshot
	ReplaceOnEmpty bool          `yaml:"replace_on_empty"`
	SyncOnStart    bool          `yaml:"sync_on_start"`
	Timeout        time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	Token          string  `yaml:"-"` // TELEGRAM_BOT_TOKEN only
	WebhookURL     string  `yaml:"webhook_url"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids"`
	AdminChatID    int64   `yaml:"admin_chat_id"`
	MaxResults     int     `yaml:"max_results"`
}

type HTTPConfig struct {
	Port string `yaml:"port"`
}

type SheetsConfig struct {
	Spreadsheet     string `yaml:"spreadsheet"` // URL or bare ID
	SheetName       string `yaml:"sheet_name"`
	CredentialsFile string `yaml:"credentials_file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			URL:       scraper.DefaultURL,
			Selectors: scraper.DefaultSelectors(),
			Timing:    scraper.DefaultTiming(),
		},
		Browser: BrowserConfig{
			DataDir:  "/tmp/apartments-data",
			Headless: true,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "apartments.db",
		},
		Schedule: ScheduleConfig{
			Cron:    "0 0 * * *",
			Timeout: 15 * time.Minute,
		},
		Telegram: TelegramConfig{
			MaxResults: 30,
		},
		HTTP: HTTPConfig{
			Port: "3000",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults,
// then applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// Partially specified locator and timing sections keep their defaults
	cfg.Catalog.Selectors = cfg.Catalog.Selectors.Merge(scraper.DefaultSelectors())
	cfg.Catalog.Timing = cfg.Catalog.Timing.Merge(scraper.DefaultTiming())

	return cfg, cfg.Validate()
}

// LoadDotEnv loads a .env file into the environment if present.
// Variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Telegram.WebhookURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv("CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("BOT_DATA_DIR"); v != "" {
		c.Browser.DataDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("SPREADSHEET"); v != "" {
		c.Sheets.Spreadsheet = v
	}
	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_CHAT_ID %q: %w", v, err)
		}
		c.Telegram.AdminChatID = id
	}
	if v := os.Getenv("ALLOWED_USER_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("invalid ALLOWED_USER_IDS: %w", err)
		}
		c.Telegram.AllowedUserIDs = ids
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func parseIDs(list string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate checks values the application cannot start without
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Catalog.URL == "" {
		return errors.New("catalog.url is required")
	}
	if c.Telegram.MaxResults <= 0 {
		return fmt.Errorf("telegram.max_results must be positive, got %d", c.Telegram.MaxResults)
	}
	return nil
}
