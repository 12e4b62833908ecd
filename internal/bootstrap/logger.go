package bootstrap

import (
	"tradesim/pkg/logging"
)

// InitLogger builds the zap logger from configuration and installs it as
// the global logger.
func InitLogger(cfg *Config) (*logging.ZapLogger, error) {
	logger, err := logging.New(logging.Options{
		Level:   cfg.System.LogLevel,
		Format:  cfg.System.LogFormat,
		Service: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	logging.SetGlobalLogger(logger)
	return logger, nil
}
