package types

import (
	"time"
)

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Environment string             `yaml:"environment" json:"environment" validate:"oneof=development production test"`
	Server      *ServerConfig      `yaml:"server" json:"server" validate:"required"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger" validate:"required"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache" validate:"required"`
	Scraper     *ScraperConfig     `yaml:"scraper" json:"scraper" validate:"required"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Docs        *DocsConfig        `yaml:"docs" json:"docs"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http" validate:"required"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn warning error fatal"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
	Output string `yaml:"output" json:"output" validate:"oneof=stdout stderr file"`
	File   string `yaml:"file" json:"file" validate:"required_if=Output file"`
}

// CacheConfig selects the cache backend. TTLMillis is the single TTL shared by every key.
type CacheConfig struct {
	Type       string       `yaml:"type" json:"type" validate:"oneof=file redis memory"`
	Dir        string       `yaml:"dir" json:"dir" validate:"required_if=Type file"`
	TTLMillis  int64        `yaml:"ttl_ms" json:"ttl_ms" validate:"min=1"`
	MaxEntries int          `yaml:"max_entries" json:"max_entries" validate:"min=0"`
	Redis      *RedisConfig `yaml:"redis" json:"redis" validate:"required_if=Type redis"`
}

func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMillis) * time.Millisecond
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" json:"addr" validate:"required"`
	Password    string        `yaml:"password" json:"password"`
	DB          int           `yaml:"db" json:"db" validate:"min=0"`
	KeyPrefix   string        `yaml:"key_prefix" json:"key_prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

type ScraperConfig struct {
	BaseURL        string         `yaml:"base_url" json:"base_url" validate:"required,url"`
	AjaxURL        string         `yaml:"ajax_url" json:"ajax_url" validate:"required,url"`
	Timezone       string         `yaml:"timezone" json:"timezone" validate:"required"`
	CookieTimeout  time.Duration  `yaml:"cookie_timeout" json:"cookie_timeout" validate:"min=0"`
	RequestTimeout time.Duration  `yaml:"request_timeout" json:"request_timeout" validate:"min=0"`
	UserAgent      string         `yaml:"user_agent" json:"user_agent"`
	Browser        *BrowserConfig `yaml:"browser" json:"browser" validate:"required"`
}

type BrowserConfig struct {
	Headless  bool   `yaml:"headless" json:"headless"`
	ExecPath  string `yaml:"exec_path" json:"exec_path"`
	NoSandbox bool   `yaml:"no_sandbox" json:"no_sandbox"`
}

type MiddlewaresConfig struct {
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Metadata    *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	Secure      *MiddlewareItemConfig `yaml:"secure" json:"secure"`
	RateLimit   *MiddlewareItemConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS        *MiddlewareItemConfig `yaml:"cors" json:"cors"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled         bool              `yaml:"enabled" json:"enabled"`
	Type            string            `yaml:"type" json:"type" validate:"omitempty,oneof=prometheus memory"`
	Path            string            `yaml:"path" json:"path" validate:"required_if=Enabled true"`
	Namespace       string            `yaml:"namespace" json:"namespace"`
	Labels          map[string]string `yaml:"labels" json:"labels"`
	EnableGoMetrics bool              `yaml:"enable_go_metrics" json:"enable_go_metrics"`
}

type HealthConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Path         string        `yaml:"path" json:"path" validate:"required_if=Enabled true"`
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout"`
}

type DocsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

type CronConfig struct {
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Timezone string            `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	Jobs     map[string]string `yaml:"jobs" json:"jobs"`
}
