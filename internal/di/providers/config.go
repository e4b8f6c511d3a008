// Package providers contains dependency injection providers for the collectr server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/metrics"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.WithFields(map[string]any{
		"environment":   cfg.App.Environment,
		"log_level":     cfg.Logger.Level,
		"remote_driver": cfg.Remote.Driver,
	}).Info("Starting collectr")

	return log, nil
}

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}
