// Package config handles configuration loading for StockPulse.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// Config represents the complete application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	News      NewsConfig      `mapstructure:"news"      yaml:"news"`
	Prices    PricesConfig    `mapstructure:"prices"    yaml:"prices"`
	Quota     QuotaConfig     `mapstructure:"quota"     yaml:"quota"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Symbols   []models.Stock  `mapstructure:"symbols"   yaml:"symbols"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string        `mapstructure:"host"            yaml:"host"`
	Port           int           `mapstructure:"port"            yaml:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"    yaml:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// DatabaseConfig selects the SQL backend and sizes its connection pool.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"            yaml:"driver"` // "sqlite" or "postgres"
	DSN             string        `mapstructure:"dsn"               yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// NewsConfig holds the headline provider and RSS settings.
type NewsConfig struct {
	APIKey     string   `mapstructure:"api_key"      yaml:"api_key"`
	BaseURL    string   `mapstructure:"base_url"     yaml:"base_url"`
	Categories []string `mapstructure:"categories"   yaml:"categories"`
	PageSize   int      `mapstructure:"page_size"    yaml:"page_size"`
	RSSFeeds   []string `mapstructure:"rss_feeds"    yaml:"rss_feeds"`
	RatePerSec int      `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
}

// PricesConfig holds the daily price provider settings.
type PricesConfig struct {
	APIKey      string `mapstructure:"api_key"      yaml:"api_key"`
	BaseURL     string `mapstructure:"base_url"     yaml:"base_url"`
	HistoryDays int    `mapstructure:"history_days" yaml:"history_days"`
	RatePerMin  int    `mapstructure:"rate_per_min" yaml:"rate_per_min"`
	Fallback    string `mapstructure:"fallback"     yaml:"fallback"` // "" or "yahoo"
	FallbackURL string `mapstructure:"fallback_url" yaml:"fallback_url"`
}

// QuotaConfig holds the advisory per-day call budgets. Zero means unlimited.
type QuotaConfig struct {
	MaxNewsCalls  int `mapstructure:"max_news_calls"  yaml:"max_news_calls"`
	MaxStockCalls int `mapstructure:"max_stock_calls" yaml:"max_stock_calls"`
}

// SchedulerConfig holds the cron specs of the background collection jobs.
type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"         yaml:"enabled"`
	DailySpecs     []string      `mapstructure:"daily_specs"     yaml:"daily_specs"`
	WeeklySpec     string        `mapstructure:"weekly_spec"     yaml:"weekly_spec"`
	WeeklyPageSize int           `mapstructure:"weekly_page_size" yaml:"weekly_page_size"`
	Timeout        time.Duration `mapstructure:"timeout"         yaml:"timeout"`
}

// CacheConfig selects the fetch cache backend.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"    yaml:"backend"` // "memory" or "redis"
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"   yaml:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"        yaml:"ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Keywords returns the symbol → keyword dictionary used by the news filter.
func (c *Config) Keywords() map[string][]string {
	kw := make(map[string][]string, len(c.Symbols))
	for _, s := range c.Symbols {
		kw[s.Symbol] = s.Keywords
	}
	return kw
}

// SymbolList returns the configured symbols in declaration order.
func (c *Config) SymbolList() []string {
	out := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		out = append(out, s.Symbol)
	}
	return out
}

// HasSymbol reports whether symbol is in the configured universe.
func (c *Config) HasSymbol(symbol string) bool {
	for _, s := range c.Symbols {
		if s.Symbol == symbol {
			return true
		}
	}
	return false
}

// Validate checks the values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unsupported %q", c.Cache.Backend))
	}
	switch c.Prices.Fallback {
	case "", "yahoo":
	default:
		errs = append(errs, fmt.Errorf("prices.fallback: unsupported %q", c.Prices.Fallback))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("symbols: at least one symbol is required"))
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			errs = append(errs, errors.New("symbols: empty symbol"))
			continue
		}
		if seen[s.Symbol] {
			errs = append(errs, fmt.Errorf("symbols: duplicate %q", s.Symbol))
		}
		seen[s.Symbol] = true
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port: out of range %d", c.API.Port))
	}
	return errors.Join(errs...)
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.stockpulse/config.yaml (home directory)
//  3. /etc/stockpulse/config.yaml (system)
//
// Environment variables override config file values.
// Format: STOCKPULSE_<SECTION>_<KEY>, e.g., STOCKPULSE_DATABASE_DSN
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".stockpulse"))
	v.AddConfigPath("/etc/stockpulse")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("STOCKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultSymbols()
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.request_timeout", 60*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "stockpulse.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	// News defaults
	v.SetDefault("news.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.categories", []string{"technology", "business"})
	v.SetDefault("news.page_size", 20)
	v.SetDefault("news.rss_feeds", []string{
		"https://feeds.bloomberg.com/markets/news.rss",
		"https://feeds.reuters.com/money/wealth/rss",
		"https://feeds.marketwatch.com/marketwatch/MarketPulse/",
		"https://finance.yahoo.com/rss/",
	})
	v.SetDefault("news.rate_per_sec", 2)

	// Price defaults (free tier: 5 calls per minute)
	v.SetDefault("prices.base_url", "https://www.alphavantage.co")
	v.SetDefault("prices.history_days", 90)
	v.SetDefault("prices.rate_per_min", 5)
	v.SetDefault("prices.fallback", "yahoo")
	v.SetDefault("prices.fallback_url", "https://query1.finance.yahoo.com")

	// Quota defaults
	v.SetDefault("quota.max_news_calls", 100)
	v.SetDefault("quota.max_stock_calls", 5)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.daily_specs", []string{"0 9 * * *", "0 18 * * *"})
	v.SetDefault("scheduler.weekly_spec", "0 2 * * 0")
	v.SetDefault("scheduler.weekly_page_size", 50)
	v.SetDefault("scheduler.timeout", 15*time.Minute)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", 10*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// DefaultSymbols returns the built-in stock universe.
func DefaultSymbols() []models.Stock {
	return []models.Stock{
		{Symbol: "AAPL", Name: "Apple Inc.", Keywords: []string{"Apple", "iPhone", "iPad", "Mac", "iOS", "App Store", "Tim Cook"}},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Keywords: []string{"Google", "Alphabet", "YouTube", "Android", "Chrome", "Sundar Pichai"}},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Keywords: []string{"Microsoft", "Windows", "Azure", "Office", "Xbox", "Satya Nadella"}},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Keywords: []string{"Amazon", "AWS", "Alexa", "Prime", "Jeff Bezos", "Andy Jassy"}},
		{Symbol: "META", Name: "Meta Platforms Inc.", Keywords: []string{"Meta", "Facebook", "Instagram", "WhatsApp", "Mark Zuckerberg"}},
		{Symbol: "TSLA", Name: "Tesla Inc.", Keywords: []string{"Tesla", "Elon Musk", "Model 3", "Model Y", "Cybertruck", "Supercharger"}},
		{Symbol: "NVDA", Name: "NVIDIA Corporation", Keywords: []string{"Nvidia", "GeForce", "AI chips", "Jensen Huang", "RTX"}},
	}
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// The unprefixed names are the ones the provider docs use.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("NEWS_API_KEY"); key != "" {
		cfg.News.APIKey = key
	}
	if key := os.Getenv("STOCKPULSE_NEWS_API_KEY"); key != "" {
		cfg.News.APIKey = key
	}
	if key := os.Getenv("ALPHA_VANTAGE_KEY"); key != "" {
		cfg.Prices.APIKey = key
	}
	if key := os.Getenv("STOCKPULSE_PRICES_API_KEY"); key != "" {
		cfg.Prices.APIKey = key
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
