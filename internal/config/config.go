package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "CATALOG_SCANNER_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	inputSheetEnv     = "INPUT_SPREADSHEET"
	outputSheetEnv    = "OUTPUT_SPREADSHEET"
	httpAddrEnv       = "HTTP_ADDR"
	browserModeEnv    = "BROWSER_MODE"
	browserHeadless   = "BROWSER_HEADLESS"
	browserNoSandbox  = "BROWSER_NO_SANDBOX"
	scrapeDelayEnv    = "SCRAPE_DELAY"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Browser modes.
const (
	BrowserHTTP   = "http"
	BrowserChrome = "chrome"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Spreadsheets  SpreadsheetConfig  `yaml:"spreadsheets"`
	HTTP          HTTPConfig         `yaml:"http"`
	Browser       BrowserConfig      `yaml:"browser"`
	Scrape        ScrapeConfig       `yaml:"scrape"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the catalog driver and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SpreadsheetConfig points at the import sheet and the mirror. The
// extension of each path picks csv or xlsx.
type SpreadsheetConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// BrowserConfig describes how pages are fetched. Mode "chrome" drives a
// visible browser and is the only mode that clears the marketplace
// challenge; "http" is a cookie keeping client for local or test targets.
type BrowserConfig struct {
	Mode              string        `yaml:"mode"`
	Headless          bool          `yaml:"headless"`
	NoSandbox         bool          `yaml:"noSandbox"`
	ExecPath          string        `yaml:"execPath"`
	UserAgent         string        `yaml:"userAgent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// ScrapeConfig tunes the resolver and the batch pacing.
type ScrapeConfig struct {
	Site             string        `yaml:"site"`
	BaseURL          string        `yaml:"baseUrl"`
	Delay            time.Duration `yaml:"delay"`
	RenderTimeout    time.Duration `yaml:"renderTimeout"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	ChallengeTimeout time.Duration `yaml:"challengeTimeout"`
	ChallengeRetries int           `yaml:"challengeRetries"`
}

// SchedulerConfig enables periodic full-catalog batches in serve mode.
// A zero interval disables them.
type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunAtStart bool          `yaml:"runAtStart"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file named by CATALOG_SCANNER_CONFIG and finally the
// environment. Keys present in the file replace defaults, zero values
// included.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, zeros, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
		zeros.apply(&cfg)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// explicitValues records file keys whose zero value is meaningful; mergo
// skips zero values when overriding.
type explicitValues struct {
	Browser struct {
		Headless  *bool `yaml:"headless"`
		NoSandbox *bool `yaml:"noSandbox"`
	} `yaml:"browser"`
	Scrape struct {
		Delay            *time.Duration `yaml:"delay"`
		ChallengeRetries *int           `yaml:"challengeRetries"`
	} `yaml:"scrape"`
	Scheduler struct {
		Interval   *time.Duration `yaml:"interval"`
		RunAtStart *bool          `yaml:"runAtStart"`
	} `yaml:"scheduler"`
}

func (e explicitValues) apply(c *Config) {
	if e.Browser.Headless != nil {
		c.Browser.Headless = *e.Browser.Headless
	}
	if e.Browser.NoSandbox != nil {
		c.Browser.NoSandbox = *e.Browser.NoSandbox
	}
	if e.Scrape.Delay != nil {
		c.Scrape.Delay = *e.Scrape.Delay
	}
	if e.Scrape.ChallengeRetries != nil {
		c.Scrape.ChallengeRetries = *e.Scrape.ChallengeRetries
	}
	if e.Scheduler.Interval != nil {
		c.Scheduler.Interval = *e.Scheduler.Interval
	}
	if e.Scheduler.RunAtStart != nil {
		c.Scheduler.RunAtStart = *e.Scheduler.RunAtStart
	}
}

func readFile(path string) (Config, explicitValues, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, explicitValues{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var (
		fileCfg Config
		zeros   explicitValues
	)
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, explicitValues{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &zeros); err != nil {
		return Config{}, explicitValues{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fileCfg, zeros, nil
}

func (c *Config) applyEnvOverrides() error {
	setString := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}

	setString(databaseDriverEnv, &c.Database.Driver)
	setString(databaseDSNEnv, &c.Database.DSN)
	setString(inputSheetEnv, &c.Spreadsheets.Input)
	setString(outputSheetEnv, &c.Spreadsheets.Output)
	setString(httpAddrEnv, &c.HTTP.Addr)
	setString(browserModeEnv, &c.Browser.Mode)
	setString(logLevelEnv, &c.Logging.Level)
	setString(telegramTokenEnv, &c.Notifications.Telegram.BotToken)
	setString(telegramChatIDEnv, &c.Notifications.Telegram.ChatID)

	setBool := func(env string, dst *bool) error {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = b
		return nil
	}
	if err := setBool(browserHeadless, &c.Browser.Headless); err != nil {
		return err
	}
	if err := setBool(browserNoSandbox, &c.Browser.NoSandbox); err != nil {
		return err
	}

	if v := strings.TrimSpace(os.Getenv(scrapeDelayEnv)); v != "" {
		delay, err := ParseDelay(v)
		if err != nil {
			return fmt.Errorf("%s: %w", scrapeDelayEnv, err)
		}
		c.Scrape.Delay = delay
	}

	return nil
}

// ParseDelay accepts a Go duration ("750ms", "2s") or a bare number of
// milliseconds.
func ParseDelay(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("delay must not be negative")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("delay must not be negative")
	}
	return d, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	switch c.Browser.Mode {
	case BrowserHTTP, BrowserChrome:
	default:
		return fmt.Errorf("unsupported browser mode %q", c.Browser.Mode)
	}
	if c.Scrape.Delay < 0 {
		return fmt.Errorf("scrape delay must not be negative")
	}
	if c.Scrape.ChallengeRetries < 0 {
		return fmt.Errorf("challenge retries must not be negative")
	}
	if c.Spreadsheets.Output == "" {
		return fmt.Errorf("output spreadsheet path is empty")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Database:     DatabaseConfig{Driver: "sqlite", DSN: "data/catalog.db"},
		Spreadsheets: SpreadsheetConfig{Input: "data/input/products.xlsx", Output: "data/output/products.xlsx"},
		HTTP:         HTTPConfig{Addr: ":8080"},
		Browser: BrowserConfig{
			Mode:              BrowserChrome,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 1,
		},
		Scrape: ScrapeConfig{
			Site:             "worten",
			BaseURL:          "https://www.worten.pt",
			Delay:            500 * time.Millisecond,
			RenderTimeout:    20 * time.Second,
			PollInterval:     500 * time.Millisecond,
			ChallengeTimeout: 30 * time.Second,
			ChallengeRetries: 1,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
