// Package config defines the gateway configuration model and loader.
package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	// DefaultListenAddress is the default HTTP listen address.
	DefaultListenAddress = ":8080"

	// DefaultRouteCacheTTL is the default TTL for the cached route table.
	DefaultRouteCacheTTL = 10 * time.Minute

	// DefaultBlacklistCacheTTL is the default TTL for cached blacklist lookups.
	DefaultBlacklistCacheTTL = 30 * time.Minute

	// DefaultAuditQueueSize is the default capacity of the audit queue.
	DefaultAuditQueueSize = 1024

	// DefaultAuditWorkers is the default number of audit writer workers.
	DefaultAuditWorkers = 4

	// DefaultMaxBufferBytes caps how much of an upstream response body the
	// templating filter will buffer before giving up and streaming through.
	DefaultMaxBufferBytes = 10 << 20

	// DefaultUpstreamTimeout is the default per-request upstream timeout.
	DefaultUpstreamTimeout = 30 * time.Second
)

// GatewayConfig is the root configuration for the gateway core.
type GatewayConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	RouteCache RouteCacheConfig `yaml:"routeCache"`
	Blacklist  BlacklistConfig  `yaml:"blacklist"`
	Audit      AuditConfig      `yaml:"audit"`
	Templating TemplatingConfig `yaml:"templating"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	UpstreamTimeout Duration `yaml:"upstreamTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds connection settings for the shared cache.
type RedisConfig struct {
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	PoolSize     int      `yaml:"poolSize"`
	MinIdleConns int      `yaml:"minIdleConns"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// DatabaseConfig holds settings for the durable store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RouteCacheConfig holds route-table cache settings.
type RouteCacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

// BlacklistConfig holds blacklist guard settings.
type BlacklistConfig struct {
	Enabled  bool     `yaml:"enabled"`
	CacheTTL Duration `yaml:"cacheTTL"`
}

// AuditConfig holds audit recorder settings.
type AuditConfig struct {
	Enabled         bool `yaml:"enabled"`
	QueueSize       int  `yaml:"queueSize"`
	Workers         int  `yaml:"workers"`
	LogRequestBody  bool `yaml:"logRequestBody"`
	LogResponseBody bool `yaml:"logResponseBody"`
}

// TemplatingConfig holds response templating settings.
type TemplatingConfig struct {
	Enabled        bool  `yaml:"enabled"`
	MaxBufferBytes int64 `yaml:"maxBufferBytes"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a GatewayConfig populated with default values.
func Default() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Address:         DefaultListenAddress,
			UpstreamTimeout: Duration(DefaultUpstreamTimeout),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "gateway.db",
		},
		RouteCache: RouteCacheConfig{
			TTL: Duration(DefaultRouteCacheTTL),
		},
		Blacklist: BlacklistConfig{
			Enabled:  true,
			CacheTTL: Duration(DefaultBlacklistCacheTTL),
		},
		Audit: AuditConfig{
			Enabled:   true,
			QueueSize: DefaultAuditQueueSize,
			Workers:   DefaultAuditWorkers,
		},
		Templating: TemplatingConfig{
			Enabled:        true,
			MaxBufferBytes: DefaultMaxBufferBytes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *GatewayConfig) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.RouteCache.TTL.Duration() <= 0 {
		return fmt.Errorf("routeCache.ttl must be positive")
	}
	if c.Blacklist.Enabled && c.Blacklist.CacheTTL.Duration() <= 0 {
		return fmt.Errorf("blacklist.cacheTTL must be positive")
	}
	if c.Audit.Enabled {
		if c.Audit.QueueSize <= 0 {
			return fmt.Errorf("audit.queueSize must be positive")
		}
		if c.Audit.Workers <= 0 {
			return fmt.Errorf("audit.workers must be positive")
		}
	}
	if c.Templating.Enabled && c.Templating.MaxBufferBytes <= 0 {
		return fmt.Errorf("templating.maxBufferBytes must be positive")
	}
	return nil
}
