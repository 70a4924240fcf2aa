// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/ports"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Upstream  UpstreamConfig   `yaml:"upstream"`
	Cache     CacheConfig      `yaml:"cache"`
	Quota     QuotaConfig      `yaml:"quota"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Redis     RedisConfig      `yaml:"redis"`
	Database  DatabaseConfig   `yaml:"database"`
	Plans     []PlanConfig     `yaml:"plans"`
	Instances []InstanceConfig `yaml:"instances"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures upstream fetches.
type UpstreamConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	FetchWait       time.Duration `yaml:"fetch_wait"` // follower wait bound
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// CacheConfig configures the response cache.
// Backend "memory" (default) or "redis".
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	NumShards     int           `yaml:"num_shards"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// QuotaConfig configures the quota ledger and rate-limit counters.
// Backend "memory" (default), "redis", or "sqlite".
type QuotaConfig struct {
	Backend string `yaml:"backend"`
}

// RateLimitConfig configures rate limiting.
type RateLimitConfig struct {
	WindowSecs  int `yaml:"window_secs"`
	BurstTokens int `yaml:"burst_tokens"`
}

// RedisConfig configures the Redis connection for durable backends.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig configures the SQLite counter database.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// PlanConfig configures one subscription tier policy.
type PlanConfig struct {
	Tier              string         `yaml:"tier"`
	TTL               time.Duration  `yaml:"ttl"`
	DailyLimits       map[string]int `yaml:"daily_limits"`
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	BypassCache       bool           `yaml:"bypass_cache"`
}

// InstanceConfig seeds the in-memory instance directory.
type InstanceConfig struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Environment variable names. Env values override file values.
const (
	EnvServerHost = "EXECGATE_SERVER_HOST"
	EnvServerPort = "EXECGATE_SERVER_PORT"
	EnvRedisAddr  = "EXECGATE_REDIS_ADDR"
	EnvRedisPass  = "EXECGATE_REDIS_PASSWORD"
	EnvDSN        = "EXECGATE_DATABASE_DSN"
	EnvLogLevel   = "EXECGATE_LOG_LEVEL"
	EnvLogFormat  = "EXECGATE_LOG_FORMAT"
)

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout:   30 * time.Second,
			FetchWait: 45 * time.Second,
		},
		Cache:     CacheConfig{Backend: "memory"},
		Quota:     QuotaConfig{Backend: "memory"},
		RateLimit: RateLimitConfig{WindowSecs: 60},
		Database:  DatabaseConfig{DSN: "execgate.db"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
	for _, p := range plan.Defaults() {
		cfg.Plans = append(cfg.Plans, planConfigFrom(p))
	}
	return cfg
}

// Load reads configuration from a YAML file, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// A plans section in the file replaces the defaults wholesale.
	fileCfg := Default()
	fileCfg.Plans = nil
	if err := yaml.Unmarshal(data, fileCfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if fileCfg.Plans == nil {
		fileCfg.Plans = cfg.Plans
	}
	cfg = fileCfg

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvServerHost); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPass); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration, failing fast on misconfiguration
// rather than at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Cache.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Quota.Backend {
	case "", "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown quota backend %q", c.Quota.Backend)
	}
	if (c.Cache.Backend == "redis" || c.Quota.Backend == "redis") && c.Redis.Addr == "" {
		return fmt.Errorf("redis backend selected but redis.addr is empty")
	}
	if c.Quota.Backend == "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("sqlite backend selected but database.dsn is empty")
	}
	if c.RateLimit.WindowSecs <= 0 {
		return fmt.Errorf("rate_limit.window_secs must be positive")
	}

	// Plan misconfiguration surfaces here, not on the first request.
	if _, err := c.PlanTable(); err != nil {
		return err
	}

	for i, inst := range c.Instances {
		if inst.ID == "" || inst.BaseURL == "" {
			return fmt.Errorf("instance %d: id and base_url are required", i)
		}
	}
	return nil
}

// PlanTable builds the validated policy table from the plans section.
func (c *Config) PlanTable() (*plan.Table, error) {
	policies := make([]plan.Policy, 0, len(c.Plans))
	for _, pc := range c.Plans {
		limits := make(map[plan.ActivityType]int, len(pc.DailyLimits))
		for activity, limit := range pc.DailyLimits {
			limits[plan.ActivityType(activity)] = limit
		}
		policies = append(policies, plan.Policy{
			Tier:              plan.Tier(pc.Tier),
			TTL:               pc.TTL,
			DailyLimits:       limits,
			RequestsPerMinute: pc.RequestsPerMinute,
			BypassCache:       pc.BypassCache,
		})
	}
	return plan.NewTable(policies)
}

// InstanceSeed converts the instances section for the directory.
func (c *Config) InstanceSeed() []ports.Instance {
	instances := make([]ports.Instance, 0, len(c.Instances))
	for _, ic := range c.Instances {
		instances = append(instances, ports.Instance{ID: ic.ID, BaseURL: ic.BaseURL, APIKey: ic.APIKey})
	}
	return instances
}

func planConfigFrom(p plan.Policy) PlanConfig {
	limits := make(map[string]int, len(p.DailyLimits))
	for activity, limit := range p.DailyLimits {
		limits[string(activity)] = limit
	}
	return PlanConfig{
		Tier:              string(p.Tier),
		TTL:               p.TTL,
		DailyLimits:       limits,
		RequestsPerMinute: p.RequestsPerMinute,
		BypassCache:       p.BypassCache,
	}
}
