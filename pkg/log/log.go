package log

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/config"
)

var Module = fx.Module("logger",
	fx.Provide(New),
)

// New builds the application logger. Production gets JSON output,
// everything else the human-readable development encoder.
func New(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	return logger.With(
		zap.String("service", cfg.AppName),
		zap.String("version", cfg.AppVersion),
	), nil
}
