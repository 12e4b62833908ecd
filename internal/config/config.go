// Package config handles configuration management with validation
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tradesim/internal/risk"
	"tradesim/internal/trading/fee"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig          `yaml:"app"`
	Account     AccountConfig      `yaml:"account"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Risk        RiskConfig         `yaml:"risk"`
	Fees        FeeConfig          `yaml:"fees"`
	Signal      SignalConfig       `yaml:"signal"`
	System      SystemConfig       `yaml:"system"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	LiveServer  LiveServerConfig   `yaml:"live_server"`
	Journal     JournalConfig      `yaml:"journal"`
	Concurrency ConcurrencyConfig  `yaml:"concurrency"`
	Alerts      AlertsConfig       `yaml:"alerts"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

// AccountConfig is the starting account of every instrument.
type AccountConfig struct {
	Currency      string  `yaml:"currency"`
	InitialEquity float64 `yaml:"initial_equity"`
}

// InstrumentConfig describes one simulated market.
type InstrumentConfig struct {
	Symbol     string        `yaml:"symbol"`
	StartPrice float64       `yaml:"start_price"`
	Volatility float64       `yaml:"volatility"`
	Bars       int           `yaml:"bars"`
	Seed       int64         `yaml:"seed"`
	Interval   time.Duration `yaml:"interval"`
}

type TakeProfitConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Targets    int     `yaml:"targets"`
	Start      float64 `yaml:"start"`
	End        float64 `yaml:"end"`
	DistWeight float64 `yaml:"dist_weight"`
	SizeWeight float64 `yaml:"size_weight"`
	SizeTotal  float64 `yaml:"size_total"`
	MinSize    float64 `yaml:"min_size"`
}

type StopLossConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Distance float64 `yaml:"distance"`
}

type TrailingStopConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Trigger  float64 `yaml:"trigger"`
	Distance float64 `yaml:"distance"`
}

// CapConfig is a cap in one unit: usd, percent (0-100 of equity) or units.
type CapConfig struct {
	Kind  string  `yaml:"kind"`
	Value float64 `yaml:"value"`
}

type CircuitBreakerConfig struct {
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses"`
	MaxDrawdownAmount    float64       `yaml:"max_drawdown_amount"`
	Cooldown             time.Duration `yaml:"cooldown"`
}

type RiskConfig struct {
	Leverage       float64              `yaml:"leverage"`
	HedgeMode      bool                 `yaml:"hedge_mode"`
	MinOrderUSD    float64              `yaml:"min_order_usd"`
	TakeProfit     TakeProfitConfig     `yaml:"take_profit"`
	StopLoss       StopLossConfig       `yaml:"stop_loss"`
	TrailingStop   TrailingStopConfig   `yaml:"trailing_stop"`
	OrderCap       CapConfig            `yaml:"order_cap"`
	PositionCap    CapConfig            `yaml:"position_cap"`
	DefaultSize    CapConfig            `yaml:"default_size"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// FeeConfig holds maker/taker amounts: rates for proportional, currency
// amounts for flat.
type FeeConfig struct {
	Kind  string  `yaml:"kind"`
	Maker float64 `yaml:"maker"`
	Taker float64 `yaml:"taker"`
}

// SignalConfig drives the scripted entry signal.
type SignalConfig struct {
	Every int64   `yaml:"every"`
	Size  float64 `yaml:"size"` // 0 selects the default size
}

type SystemConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	MetricsPort   int    `yaml:"metrics_port"`
	StdoutTraces  bool   `yaml:"stdout_traces"`
	StdoutLogs    bool   `yaml:"stdout_logs"`
}

type LiveServerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxConnections int           `yaml:"max_connections"`
	Production     bool          `yaml:"production"`
	PublishEvery   int           `yaml:"publish_every"`
	Pace           time.Duration `yaml:"pace"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

// AlertsConfig selects the channels that receive circuit breaker alerts.
// Empty credentials disable a channel.
type AlertsConfig struct {
	Log              bool   `yaml:"log"`
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

type ConcurrencyConfig struct {
	MaxWorkers  int `yaml:"max_workers"`
	MaxCapacity int `yaml:"max_capacity"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion. Fields missing from the file keep their DefaultConfig value.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Validate reports every problem found; each is a ValidationError.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Account.InitialEquity <= 0 {
		add("account.initial_equity", c.Account.InitialEquity, "must be positive")
	}

	if len(c.Instruments) == 0 {
		add("instruments", nil, "at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		field := fmt.Sprintf("instruments[%d]", i)
		switch {
		case inst.Symbol == "":
			add(field+".symbol", inst.Symbol, "symbol is required")
		case seen[inst.Symbol]:
			add(field+".symbol", inst.Symbol, "duplicate symbol")
		}
		seen[inst.Symbol] = true
		if inst.StartPrice <= 0 {
			add(field+".start_price", inst.StartPrice, "must be positive")
		}
		if inst.Volatility < 0 {
			add(field+".volatility", inst.Volatility, "must not be negative")
		}
		if inst.Bars < 1 {
			add(field+".bars", inst.Bars, "must be at least 1")
		}
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		add("system.log_level", c.System.LogLevel, "must be one of: "+strings.Join(validLevels, ", "))
	}
	if !contains([]string{"console", "json"}, c.System.LogFormat) {
		add("system.log_format", c.System.LogFormat, "must be console or json")
	}

	if !contains([]string{"memory", "sqlite"}, c.Journal.Driver) {
		add("journal.driver", c.Journal.Driver, "must be memory or sqlite")
	} else if c.Journal.Driver == "sqlite" && c.Journal.Path == "" {
		add("journal.path", c.Journal.Path, "path is required for sqlite")
	}

	if c.Telemetry.EnableMetrics && (c.Telemetry.MetricsPort < 1 || c.Telemetry.MetricsPort > 65535) {
		add("telemetry.metrics_port", c.Telemetry.MetricsPort, "must be a valid port")
	}
	if c.LiveServer.Enabled && c.LiveServer.Addr == "" {
		add("live_server.addr", c.LiveServer.Addr, "address is required when enabled")
	}
	if c.Alerts.TelegramBotToken != "" && c.Alerts.TelegramChatID == "" {
		add("alerts.telegram_chat_id", c.Alerts.TelegramChatID, "chat id is required with a bot token")
	}
	if c.Signal.Every < 0 {
		add("signal.every", c.Signal.Every, "must not be negative")
	}

	if _, err := c.FeeSchedule(); err != nil {
		add("fees", c.Fees.Kind, err.Error())
	}
	rc, err := c.RiskConfig()
	if err != nil {
		add("risk", nil, err.Error())
	} else if err := rc.Validate(); err != nil {
		add("risk", nil, err.Error())
	}

	return errors.Join(errs...)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func (c CapConfig) toCap() (risk.Cap, error) {
	kind, err := risk.ParseCapKind(c.Kind)
	if err != nil {
		return risk.Cap{}, err
	}
	cp := risk.Cap{Kind: kind}
	switch kind {
	case risk.CapUSD:
		cp.USD = dec(c.Value)
	case risk.CapPercent:
		cp.Percent = dec(c.Value)
	case risk.CapUnits:
		cp.Units = dec(c.Value)
	}
	return cp, nil
}

// RiskConfig translates the risk section into the domain parameter set.
func (c *Config) RiskConfig() (risk.Config, error) {
	r := c.Risk
	orderCap, err := r.OrderCap.toCap()
	if err != nil {
		return risk.Config{}, fmt.Errorf("order_cap: %w", err)
	}
	positionCap, err := r.PositionCap.toCap()
	if err != nil {
		return risk.Config{}, fmt.Errorf("position_cap: %w", err)
	}
	defaultSize, err := r.DefaultSize.toCap()
	if err != nil {
		return risk.Config{}, fmt.Errorf("default_size: %w", err)
	}

	return risk.Config{
		Leverage:    dec(r.Leverage),
		HedgeMode:   r.HedgeMode,
		MinOrderUSD: dec(r.MinOrderUSD),
		TakeProfit: risk.TakeProfit{
			Enabled:    r.TakeProfit.Enabled,
			Targets:    r.TakeProfit.Targets,
			Start:      dec(r.TakeProfit.Start),
			End:        dec(r.TakeProfit.End),
			DistWeight: dec(r.TakeProfit.DistWeight),
			SizeWeight: dec(r.TakeProfit.SizeWeight),
			SizeTotal:  dec(r.TakeProfit.SizeTotal),
			MinSize:    dec(r.TakeProfit.MinSize),
		},
		StopLoss: risk.StopLoss{
			Enabled:  r.StopLoss.Enabled,
			Distance: dec(r.StopLoss.Distance),
		},
		TrailingStop: risk.TrailingStop{
			Enabled:  r.TrailingStop.Enabled,
			Trigger:  dec(r.TrailingStop.Trigger),
			Distance: dec(r.TrailingStop.Distance),
		},
		OrderCap:    orderCap,
		PositionCap: positionCap,
		DefaultSize: defaultSize,
		CircuitBreaker: risk.CircuitConfig{
			MaxConsecutiveLosses: r.CircuitBreaker.MaxConsecutiveLosses,
			MaxDrawdownAmount:    dec(r.CircuitBreaker.MaxDrawdownAmount),
			CooldownPeriod:       r.CircuitBreaker.Cooldown,
		},
	}, nil
}

// FeeSchedule builds the maker/taker fee models.
func (c *Config) FeeSchedule() (fee.Schedule, error) {
	kind, err := fee.ParseKind(c.Fees.Kind)
	if err != nil {
		return fee.Schedule{}, err
	}
	maker, err := fee.New(kind, dec(c.Fees.Maker))
	if err != nil {
		return fee.Schedule{}, fmt.Errorf("maker: %w", err)
	}
	taker, err := fee.New(kind, dec(c.Fees.Taker))
	if err != nil {
		return fee.Schedule{}, fmt.Errorf("taker: %w", err)
	}
	return fee.Schedule{Maker: maker, Taker: taker}, nil
}

// InitialEquity is the starting equity as a decimal.
func (c *Config) InitialEquity() decimal.Decimal {
	return dec(c.Account.InitialEquity)
}

// String returns the effective configuration as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the stock configuration: one BTCUSDT random walk
// traded with the default risk set.
func DefaultConfig() *Config {
	return &Config{
		App:     AppConfig{Name: "tradesim"},
		Account: AccountConfig{Currency: "USDT", InitialEquity: 1000},
		Instruments: []InstrumentConfig{
			{Symbol: "BTCUSDT", StartPrice: 100, Volatility: 0.002, Bars: 5000, Seed: 1, Interval: time.Minute},
		},
		Risk: RiskConfig{
			Leverage:    1,
			MinOrderUSD: 10,
			TakeProfit: TakeProfitConfig{
				Enabled:    true,
				Targets:    3,
				Start:      0.005,
				End:        0.01,
				DistWeight: 0.5,
				SizeWeight: 0.5,
				SizeTotal:  1,
			},
			StopLoss:     StopLossConfig{Enabled: true, Distance: 0.02},
			TrailingStop: TrailingStopConfig{Enabled: true, Trigger: 0.005, Distance: 0.005},
			OrderCap:     CapConfig{Kind: "usd", Value: 1000},
			PositionCap:  CapConfig{Kind: "usd", Value: 1000},
			DefaultSize:  CapConfig{Kind: "usd", Value: 1000},
			CircuitBreaker: CircuitBreakerConfig{
				MaxConsecutiveLosses: 5,
				Cooldown:             time.Hour,
			},
		},
		Fees:        FeeConfig{Kind: "proportional", Maker: 0.0002, Taker: 0.0004},
		Signal:      SignalConfig{Every: 60},
		System:      SystemConfig{LogLevel: "INFO", LogFormat: "console"},
		Telemetry:   TelemetryConfig{ServiceName: "tradesim", MetricsPort: 9090},
		LiveServer:  LiveServerConfig{Addr: ":8081", AllowedOrigins: []string{"*"}, MaxConnections: 100, PublishEvery: 100},
		Journal:     JournalConfig{Driver: "memory", Path: "tradesim.db"},
		Concurrency: ConcurrencyConfig{MaxWorkers: 4, MaxCapacity: 64},
		Alerts:      AlertsConfig{Log: true},
	}
}
