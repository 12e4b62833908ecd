package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"tradesim/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if cfg.Journal.Driver == "sqlite" {
		dir := filepath.Dir(cfg.Journal.Path)
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("journal directory not found: %s", dir)
			}
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("journal path parent is not a directory: %s", dir)
		}
		if info.Mode().Perm()&0200 == 0 {
			return fmt.Errorf("journal directory is not writable: %s (%04o)", dir, info.Mode().Perm())
		}
	}

	if cfg.LiveServer.Enabled && cfg.Telemetry.EnableMetrics &&
		cfg.LiveServer.Addr == fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort) {
		return fmt.Errorf("live server and metrics server both bind %s", cfg.LiveServer.Addr)
	}

	return nil
}
