package domain

import (
	"time"
)

// Persistence modes for diagnosis reports
const (
	PersistFailOpen   = "fail_open"
	PersistFailClosed = "fail_closed"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Diagnosis   DiagnosisConfig `mapstructure:"diagnosis"`
	Outbreak    OutbreakConfig  `mapstructure:"outbreak"`
	Clusters    ClusterConfig   `mapstructure:"clusters"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Breaker     BreakerConfig   `mapstructure:"breaker"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig represents ranking cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	MemoryItems int           `mapstructure:"memory_items"`
	MemoryTTL   time.Duration `mapstructure:"memory_ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DiagnosisConfig tunes the ranking and report persistence
type DiagnosisConfig struct {
	Threshold     float64       `mapstructure:"threshold"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	CorpusRefresh time.Duration `mapstructure:"corpus_refresh"`
	PersistMode   string        `mapstructure:"persist_mode"`
}

// OutbreakConfig tunes outbreak and red-zone detection
type OutbreakConfig struct {
	Window        time.Duration `mapstructure:"window"`
	Multiplier    float64       `mapstructure:"multiplier"`
	DefaultRadius float64       `mapstructure:"default_radius"`
	RedZoneRadius float64       `mapstructure:"red_zone_radius"`
}

// ClusterConfig tunes radial clustering
type ClusterConfig struct {
	DefaultRadius float64 `mapstructure:"default_radius"`
	BandWidth     float64 `mapstructure:"band_width"`
}

// RateLimitConfig configures the per-client request limiter
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig configures the store circuit breakers
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// DefaultDiagnosisConfig returns the stock ranking settings
func DefaultDiagnosisConfig() DiagnosisConfig {
	return DiagnosisConfig{
		Threshold:     0.1,
		MaxCandidates: 0,
		CorpusRefresh: 5 * time.Minute,
		PersistMode:   PersistFailOpen,
	}
}

// DefaultOutbreakConfig returns the stock outbreak settings
func DefaultOutbreakConfig() OutbreakConfig {
	return OutbreakConfig{
		Window:        7 * 24 * time.Hour,
		Multiplier:    2,
		DefaultRadius: 10000,
		RedZoneRadius: 5000,
	}
}

// DefaultClusterConfig returns the stock clustering settings
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		DefaultRadius: 10000,
		BandWidth:     1000,
	}
}

// DefaultBreakerConfig returns the stock circuit breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}
