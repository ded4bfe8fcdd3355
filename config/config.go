// Package config loads the YAML configuration with ${VAR} environment
// substitution. Validation failures are fatal at startup.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Broker        BrokerConfig                 `yaml:"broker"`
	Trading       TradingConfig                `yaml:"trading"`
	Risk          RiskConfig                   `yaml:"risk"`
	Strategies    map[string]StrategyConfig    `yaml:"strategies"`
	MarketContext MarketContextConfig          `yaml:"marketContext"`
	News          NewsConfig                   `yaml:"news"`
	Symbols       map[string]SymbolOverrides   `yaml:"symbols"`
	Engine        EngineConfig                 `yaml:"engine"`
	API           APIConfig                    `yaml:"api"`
	Database      DatabaseConfig               `yaml:"database"`
	Redis         RedisConfig                  `yaml:"redis"`
	Notification  NotificationConfig           `yaml:"notification"`
	Logging       LoggingConfig                `yaml:"logging"`
}

// BrokerConfig points at the terminal bridge
type BrokerConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	Mock           bool          `yaml:"mock"`
}

// TradingConfig holds the account-wide trade limits
type TradingConfig struct {
	Symbols          []string      `yaml:"symbols"`
	TickInterval     time.Duration `yaml:"tickInterval"`
	MaxOpenPositions int           `yaml:"maxOpenPositions"`
	MaxLotSize       float64       `yaml:"maxLotSize"`
	DefaultLotSize   float64       `yaml:"defaultLotSize"`
	SpreadThreshold  float64       `yaml:"spreadThreshold"`
	Slippage         float64       `yaml:"slippage"`
	CloseAllOnStop   bool          `yaml:"closeAllOnStop"`
	Magic            int           `yaml:"magic"`
}

// RiskConfig holds the risk limits and stop parameters
type RiskConfig struct {
	MaxRiskPerTrade      float64 `yaml:"maxRiskPerTrade"`
	MaxDrawdown          float64 `yaml:"maxDrawdown"`
	MaxDailyLoss         float64 `yaml:"maxDailyLoss"`
	StopLossPips         float64 `yaml:"stopLossPips"`
	TakeProfitMultiplier float64 `yaml:"takeProfitMultiplier"`
	ATRMultiplier        float64 `yaml:"atrMultiplier"`
	TrailingStopDistance float64 `yaml:"trailingStopDistance"`
	BreakEvenEnabled     bool    `yaml:"breakEvenEnabled"`
	BreakEvenTrigger     float64 `yaml:"breakEvenTrigger"`
}

// StrategyConfig is the per-strategy section; strategy specific knobs
// live in Params
type StrategyConfig struct {
	Enabled       *bool              `yaml:"enabled"`
	MinConfidence float64            `yaml:"minConfidence"`
	Params        map[string]float64 `yaml:",inline"`
}

// MarketContextConfig tunes the regime thresholds
type MarketContextConfig struct {
	ADXStrong float64       `yaml:"adxStrong"`
	ADXTrend  float64       `yaml:"adxTrend"`
	ATRHigh   float64       `yaml:"atrHigh"`
	ATRLow    float64       `yaml:"atrLow"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
}

// NewsConfig wires the feed and calendar sources
type NewsConfig struct {
	FeedURL              string        `yaml:"feedUrl"`
	CalendarURL          string        `yaml:"calendarUrl"`
	BufferMinutes        int           `yaml:"bufferMinutes"`
	RefreshInterval      time.Duration `yaml:"refreshInterval"`
	Keywords             []string      `yaml:"keywords"`
	BlockAllOnHighImpact bool          `yaml:"blockAllOnHighImpact"`
}

// SymbolOverrides carries per-symbol deviations from the global limits
type SymbolOverrides struct {
	TickInterval    time.Duration `yaml:"tickInterval"`
	SpreadThreshold float64       `yaml:"spreadThreshold"`
	MaxRiskPerTrade float64       `yaml:"maxRiskPerTrade"`
	Strategies      []string      `yaml:"strategies"`
}

// EngineConfig tunes the supervisor loop
type EngineConfig struct {
	ReconnectAttempts int           `yaml:"reconnectAttempts"`
	ReconnectBackoff  time.Duration `yaml:"reconnectBackoff"`
	PauseCooldown     time.Duration `yaml:"pauseCooldown"`
}

// APIConfig holds the HTTP server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DatabaseConfig holds the trade history database settings
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds the position state store settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NotificationConfig holds the chat provider settings
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig holds the Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// DiscordConfig holds the Discord webhook settings
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhookUrl"`
}

// LoggingConfig holds the logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads the config file, substitutes ${VAR} placeholders from the
// environment and validates the result. A .env file next to the
// process is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration defaults applied before the file is
// parsed over them
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Endpoint:       "127.0.0.1:8228",
			RequestTimeout: 10 * time.Second,
		},
		Trading: TradingConfig{
			Symbols:          []string{"EURUSD"},
			TickInterval:     30 * time.Second,
			MaxOpenPositions: 3,
			MaxLotSize:       1.0,
			DefaultLotSize:   0.01,
			SpreadThreshold:  3.0,
			Magic:            770042,
		},
		Risk: RiskConfig{
			MaxRiskPerTrade:      0.01,
			MaxDrawdown:          0.10,
			MaxDailyLoss:         0.03,
			StopLossPips:         30,
			TakeProfitMultiplier: 2.0,
			ATRMultiplier:        1.5,
			TrailingStopDistance: 20,
			BreakEvenEnabled:     true,
			BreakEvenTrigger:     15,
		},
		MarketContext: MarketContextConfig{
			ADXStrong: 35,
			ADXTrend:  25,
			ATRHigh:   2.0,
			ATRLow:    0.5,
			CacheTTL:  5 * time.Minute,
		},
		News: NewsConfig{
			BufferMinutes:   30,
			RefreshInterval: 15 * time.Minute,
		},
		Engine: EngineConfig{
			ReconnectAttempts: 5,
			ReconnectBackoff:  2 * time.Second,
			PauseCooldown:     5 * time.Minute,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate rejects configurations the engines cannot run with
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("config: trading.symbols must name at least one symbol")
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade > 0.1 {
		return fmt.Errorf("config: risk.maxRiskPerTrade must be in (0, 0.1], got %v", c.Risk.MaxRiskPerTrade)
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("config: risk.maxDrawdown must be in (0, 1), got %v", c.Risk.MaxDrawdown)
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss >= 1 {
		return fmt.Errorf("config: risk.maxDailyLoss must be in (0, 1), got %v", c.Risk.MaxDailyLoss)
	}
	if c.Risk.TakeProfitMultiplier <= 0 {
		return fmt.Errorf("config: risk.takeProfitMultiplier must be positive")
	}
	if c.Trading.MaxOpenPositions <= 0 {
		return fmt.Errorf("config: trading.maxOpenPositions must be positive")
	}
	if c.Trading.DefaultLotSize <= 0 || c.Trading.MaxLotSize < c.Trading.DefaultLotSize {
		return fmt.Errorf("config: lot sizes invalid (default %v, max %v)", c.Trading.DefaultLotSize, c.Trading.MaxLotSize)
	}
	if c.Broker.Endpoint == "" && !c.Broker.Mock {
		return fmt.Errorf("config: broker.endpoint is required unless broker.mock is set")
	}
	if c.News.BufferMinutes < 0 {
		return fmt.Errorf("config: news.bufferMinutes cannot be negative")
	}
	for symbol, ov := range c.Symbols {
		if ov.MaxRiskPerTrade < 0 || ov.MaxRiskPerTrade > 0.1 {
			return fmt.Errorf("config: symbols.%s.maxRiskPerTrade out of range", symbol)
		}
	}
	return nil
}

// StrategyEnabled reports the enabled flag for a strategy, defaulting
// to enabled for everything except the opt-in scalpers
func (c *Config) StrategyEnabled(name string) bool {
	sc, ok := c.Strategies[name]
	if !ok || sc.Enabled == nil {
		return name != "catamilho"
	}
	return *sc.Enabled
}

// StrategyMinConfidence returns the configured threshold for a
// strategy, or the strategy's own default
func (c *Config) StrategyMinConfidence(name string, fallback float64) float64 {
	sc, ok := c.Strategies[name]
	if !ok || sc.MinConfidence <= 0 {
		return fallback
	}
	return sc.MinConfidence
}

// StrategyParam returns a numeric strategy parameter with a fallback
func (c *Config) StrategyParam(name, key string, fallback float64) float64 {
	sc, ok := c.Strategies[name]
	if !ok {
		return fallback
	}
	if v, ok := sc.Params[key]; ok {
		return v
	}
	return fallback
}
