package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"tradesim/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLogger_OTelBridge(t *testing.T) {
	tel, err := telemetry.Setup("test-logger")
	require.NoError(t, err)
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	var buf bytes.Buffer
	logger, err := New(Options{Level: "DEBUG", Output: &buf})
	require.NoError(t, err)

	logger.Info("position opened", "symbol", "BTCUSDT", "size", "0.5")
	logger.Debug("order placed", "kind", "limit")

	out := buf.String()
	assert.Contains(t, out, "position opened")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "order placed")
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "WARN", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestZapLogger_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "INFO", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.WithField("component", "engine").
		WithFields(map[string]interface{}{"symbol": "ETHUSDT"}).
		Info("tick", "bar", 7)

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "ETHUSDT", entry["symbol"])
	assert.Equal(t, float64(7), entry["bar"])
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{Level: "LOUD"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", lvl.String())

	lvl, err = ParseLevel("nope")
	assert.Error(t, err)
	assert.Equal(t, "info", lvl.String())
}
