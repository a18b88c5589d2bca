package metrics

import (
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// NewManager picks the metrics backend. A disabled or missing config yields
// NopMetrics so callers never need a nil check.
func NewManager(logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return NewNop(), nil
	}

	var manager types.MetricsManager

	switch config.Type {
	case "prometheus", "":
		manager = NewPrometheusMetrics(logger, config)
	case "memory":
		manager = NewMemoryMetrics(logger, config)
	default:
		return nil, types.Errorf(types.ErrMetricsType, "type: %s", config.Type)
	}

	logger.Info("Metrics manager initialized",
		zap.String("type", config.Type),
		zap.String("path", config.Path))

	return manager, nil
}
