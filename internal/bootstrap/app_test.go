package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tradesim/internal/config"
	"tradesim/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() *App {
	return &App{Cfg: config.DefaultConfig(), Logger: logging.NewNop()}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Instruments[0].Symbol)
}

func TestPreFlightJournalDirectory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Journal.Driver = "sqlite"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "missing", "journal.db")
	err := checkPreFlight(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal directory not found")

	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	assert.NoError(t, checkPreFlight(cfg))
}

func TestPreFlightPortClash(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LiveServer.Enabled = true
	cfg.LiveServer.Addr = ":9090"
	cfg.Telemetry.EnableMetrics = true
	cfg.Telemetry.MetricsPort = 9090
	assert.Error(t, checkPreFlight(cfg))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  initial_equity: 250\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Account.InitialEquity)
}

func TestRunWaitsForRunners(t *testing.T) {
	var done atomic.Int32
	r := RunnerFunc(func(ctx context.Context) error {
		done.Add(1)
		return nil
	})

	require.NoError(t, testApp().Run(context.Background(), r, r, r))
	assert.Equal(t, int32(3), done.Load())
}

func TestRunFirstErrorCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	failing := RunnerFunc(func(ctx context.Context) error { return boom })
	blocking := RunnerFunc(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("not cancelled")
		}
	})

	err := testApp().Run(context.Background(), failing, blocking)
	assert.ErrorIs(t, err, boom)
}

func TestRunParentCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocking := RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, testApp().Run(ctx, blocking))
}
