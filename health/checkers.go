package health

import (
	"context"
	"os"
	"path/filepath"

	"github.com/saiset-co/dbus-service/types"
)

// CacheDirChecker reports whether dir exists and accepts writes.
func CacheDirChecker(dir string) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		info, err := os.Stat(dir)
		if err != nil {
			return unhealthy("cache directory unavailable: " + err.Error())
		}
		if !info.IsDir() {
			return unhealthy("cache path is not a directory")
		}

		probe, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return unhealthy("cache directory not writable: " + err.Error())
		}
		name := probe.Name()
		_ = probe.Close()
		_ = os.Remove(name)

		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"dir": filepath.Clean(dir)},
		}
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps any dependency exposing Ping, such as the redis store.
func PingChecker(target pinger) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if err := target.Ping(ctx); err != nil {
			return unhealthy(err.Error())
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

func unhealthy(message string) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusUnhealthy, Message: message}
}
