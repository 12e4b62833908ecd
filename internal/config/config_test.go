package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradesim/internal/risk"
	"tradesim/internal/trading/fee"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "path: ${TEST_JOURNAL_PATH}",
			envVars: map[string]string{
				"TEST_JOURNAL_PATH": "/tmp/j.db",
			},
			expected: "path: /tmp/j.db",
		},
		{
			name:  "expand multiple env vars",
			input: "symbol: ${SIM_SYMBOL}\nlog_level: ${SIM_LEVEL}",
			envVars: map[string]string{
				"SIM_SYMBOL": "ETHUSDT",
				"SIM_LEVEL":  "DEBUG",
			},
			expected: "symbol: ETHUSDT\nlog_level: DEBUG",
		},
		{
			name:     "missing env var returns empty string",
			input:    "path: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "path: ",
		},
		{
			name:  "mixed static and env vars",
			input: "bars: 123\nsymbol: ${SIM_SYMBOL}",
			envVars: map[string]string{
				"SIM_SYMBOL": "SOLUSDT",
			},
			expected: "bars: 123\nsymbol: SOLUSDT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	rc, err := cfg.RiskConfig()
	require.NoError(t, err)
	def := risk.DefaultConfig()
	assert.True(t, def.Leverage.Equal(rc.Leverage))
	assert.True(t, def.StopLoss.Distance.Equal(rc.StopLoss.Distance))
	assert.Equal(t, def.TakeProfit.Targets, rc.TakeProfit.Targets)
	assert.Equal(t, risk.CapUSD, rc.OrderCap.Kind)
	assert.True(t, rc.OrderCap.USD.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, time.Hour, rc.CircuitBreaker.CooldownPeriod)

	fs, err := cfg.FeeSchedule()
	require.NoError(t, err)
	assert.Equal(t, fee.KindProportional, fs.Taker.Kind())
	assert.Equal(t, "0.0004", fs.Taker.Rate().String())
	assert.Equal(t, "0.0002", fs.Maker.Rate().String())
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	t.Setenv("TEST_SIM_DB", "journal.db")

	content := `
account:
  initial_equity: 5000
instruments:
  - symbol: ETHUSDT
    start_price: 2000
    volatility: 0.001
    bars: 100
    seed: 7
    interval: 5m
risk:
  leverage: 3
  hedge_mode: true
  order_cap:
    kind: percent
    value: 25
  circuit_breaker:
    max_consecutive_losses: 2
    cooldown: 30m
journal:
  driver: sqlite
  path: ${TEST_SIM_DB}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "journal.db", cfg.Journal.Path)
	assert.Equal(t, 5000.0, cfg.Account.InitialEquity)
	assert.True(t, cfg.InitialEquity().Equal(decimal.NewFromInt(5000)))
	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, "ETHUSDT", cfg.Instruments[0].Symbol)
	assert.Equal(t, 5*time.Minute, cfg.Instruments[0].Interval)

	// untouched sections keep their defaults
	assert.Equal(t, "INFO", cfg.System.LogLevel)
	assert.Equal(t, 0.0004, cfg.Fees.Taker)

	rc, err := cfg.RiskConfig()
	require.NoError(t, err)
	assert.True(t, rc.HedgeMode)
	assert.True(t, rc.Leverage.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, risk.CapPercent, rc.OrderCap.Kind)
	assert.True(t, rc.OrderCap.Percent.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 2, rc.CircuitBreaker.MaxConsecutiveLosses)
	assert.Equal(t, 30*time.Minute, rc.CircuitBreaker.CooldownPeriod)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("instruments: [unclosed"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Account.InitialEquity = 0
	cfg.Instruments = append(cfg.Instruments, InstrumentConfig{Symbol: "BTCUSDT", StartPrice: -1, Bars: 0})
	cfg.System.LogLevel = "LOUD"
	cfg.Journal.Driver = "postgres"
	cfg.Fees.Kind = "tiered"
	cfg.Risk.Leverage = 0

	err := cfg.Validate()
	require.Error(t, err)

	fields := map[string]bool{}
	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	for _, e := range joined.Unwrap() {
		var ve ValidationError
		require.True(t, errors.As(e, &ve))
		fields[ve.Field] = true
	}

	for _, f := range []string{
		"account.initial_equity",
		"instruments[1].symbol",
		"instruments[1].start_price",
		"instruments[1].bars",
		"system.log_level",
		"journal.driver",
		"fees",
		"risk",
	} {
		assert.True(t, fields[f], "missing validation error for %s", f)
	}
}

func TestValidateJournalAndServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Journal = JournalConfig{Driver: "sqlite"}
	cfg.LiveServer.Enabled = true
	cfg.LiveServer.Addr = ""
	cfg.Telemetry.EnableMetrics = true
	cfg.Telemetry.MetricsPort = 70000

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.path")
	assert.Contains(t, err.Error(), "live_server.addr")
	assert.Contains(t, err.Error(), "telemetry.metrics_port")
}

func TestRiskConfigUnitsAndBadKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.DefaultSize = CapConfig{Kind: "units", Value: 0.5}
	rc, err := cfg.RiskConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.5", rc.DefaultSize.Units.String())

	cfg.Risk.PositionCap = CapConfig{Kind: "lots", Value: 1}
	_, err = cfg.RiskConfig()
	assert.Error(t, err)
}

func TestFlatFeeSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fees = FeeConfig{Kind: "flat", Maker: 0.5, Taker: 1}
	fs, err := cfg.FeeSchedule()
	require.NoError(t, err)
	assert.Equal(t, "1", fs.Taker.Calculate(decimal.NewFromInt(10), decimal.NewFromInt(100)).String())
}

func TestConfig_String(t *testing.T) {
	out := DefaultConfig().String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "journal:")
}

func TestShippedConfigLoads(t *testing.T) {
	t.Setenv("TRADESIM_TELEGRAM_TOKEN", "")
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "simulator.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Instruments, 2)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)

	rc, err := cfg.RiskConfig()
	require.NoError(t, err)
	assert.Equal(t, risk.CapPercent, rc.DefaultSize.Kind)
	assert.Equal(t, "100", rc.CircuitBreaker.MaxDrawdownAmount.String())
}
