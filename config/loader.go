package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/dbus-service/types"
)

type Loader struct {
	validator *validator.Validate
	lookupEnv func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
		lookupEnv: os.LookupEnv,
	}
}

// Load reads configPath when given, then applies environment overrides and validates.
// An empty path yields defaults plus environment.
func Load(configPath string) (*types.ServiceConfig, error) {
	return NewLoader().Load(configPath)
}

func (l *Loader) Load(configPath string) (*types.ServiceConfig, error) {
	config := l.Defaults()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, types.Errorf(types.ErrConfigNotFound, "%s: %v", configPath, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		data, err := l.ReadFileWithTimeout(ctx, configPath)
		if err != nil {
			return nil, types.WrapError(err, "failed to read config file")
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, types.Errorf(types.ErrConfigLoadFailed, "parse YAML: %v", err)
		}
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:        "dbus-service",
		Version:     "1.0.0",
		Environment: "development",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "0.0.0.0",
				Port:            80,
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Cache: &types.CacheConfig{
			Type:      "file",
			Dir:       "cache",
			TTLMillis: 3600000,
		},
		Scraper: &types.ScraperConfig{
			BaseURL:       "https://dbus.eus/",
			AjaxURL:       "https://dbus.eus/wp-admin/admin-ajax.php",
			Timezone:      "Europe/Madrid",
			CookieTimeout: 5 * time.Second,
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			Browser: &types.BrowserConfig{
				Headless:  true,
				NoSandbox: true,
			},
		},
		Middlewares: &types.MiddlewaresConfig{
			Recovery: &types.MiddlewareItemConfig{Enabled: true, Weight: 10},
			Logging:  &types.MiddlewareItemConfig{Enabled: true, Weight: 20},
			Metadata: &types.MiddlewareItemConfig{Enabled: true, Weight: 30},
			Secure:   &types.MiddlewareItemConfig{Enabled: true, Weight: 35},
			RateLimit: &types.MiddlewareItemConfig{Enabled: true, Weight: 40, Params: map[string]interface{}{
				"window_ms":    900000,
				"max_requests": 100,
			}},
			CORS:        &types.MiddlewareItemConfig{Enabled: true, Weight: 50},
			Compression: &types.MiddlewareItemConfig{Enabled: true, Weight: 60},
		},
		Metrics: &types.MetricsConfig{
			Enabled:         true,
			Type:            "prometheus",
			Path:            "/metrics",
			Namespace:       "dbus",
			EnableGoMetrics: true,
		},
		Health: &types.HealthConfig{
			Enabled:      true,
			Path:         "/health",
			CheckTimeout: 5 * time.Second,
		},
		Docs: &types.DocsConfig{
			Enabled: true,
			Path:    "/docs",
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "Europe/Madrid",
			Jobs: map[string]string{
				"cache-sweep": "0 */15 * * * *",
			},
		},
	}
}

func (l *Loader) applyEnv(config *types.ServiceConfig) error {
	if v, ok := l.lookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return types.Errorf(types.ErrConfigLoadFailed, "PORT: %v", err)
		}
		config.Server.HTTP.Port = port
	}

	if v, ok := l.lookupEnv("NODE_ENV"); ok {
		config.Environment = v
	}

	if v, ok := l.lookupEnv("CACHE_EXPIRY"); ok {
		ttl, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return types.Errorf(types.ErrConfigLoadFailed, "CACHE_EXPIRY: %v", err)
		}
		config.Cache.TTLMillis = ttl
	}

	if v, ok := l.lookupEnv("CACHE_DIR"); ok {
		config.Cache.Dir = v
	}

	if v, ok := l.lookupEnv("CACHE_TYPE"); ok {
		config.Cache.Type = v
	}

	if v, ok := l.lookupEnv("REDIS_ADDR"); ok {
		if config.Cache.Redis == nil {
			config.Cache.Redis = &types.RedisConfig{KeyPrefix: "dbus:"}
		}
		config.Cache.Redis.Addr = v
	}

	if v, ok := l.lookupEnv("LOG_LEVEL"); ok {
		config.Logger.Level = v
	}

	if v, ok := l.lookupEnv("DBUS_BASE_URL"); ok {
		config.Scraper.BaseURL = v
	}

	if v, ok := l.lookupEnv("DBUS_AJAX_URL"); ok {
		config.Scraper.AjaxURL = v
	}

	if v, ok := l.lookupEnv("TIMEZONE"); ok {
		config.Scraper.Timezone = v
	}

	if config.Middlewares != nil && config.Middlewares.RateLimit != nil {
		for env, param := range map[string]string{"RATE_LIMIT_WINDOW": "window_ms", "RATE_LIMIT_MAX": "max_requests"} {
			v, ok := l.lookupEnv(env)
			if !ok {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return types.Errorf(types.ErrConfigLoadFailed, "%s: %v", env, err)
			}
			if config.Middlewares.RateLimit.Params == nil {
				config.Middlewares.RateLimit.Params = make(map[string]interface{})
			}
			config.Middlewares.RateLimit.Params[param] = n
		}
	}

	return nil
}
