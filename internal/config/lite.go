package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/medmap-diagnosis-server/internal/domain"
)

// LiteConfig drives medmap-lite: one SQLite file under DataDir, an in-process
// cache and either the REST API or the MCP tools on stdio.
type LiteConfig struct {
	DataDir    string
	CorpusFile string // seeded when the store has no diseases

	CacheMaxItems int
	CacheTTL      time.Duration

	Transport string // http or stdio
	HTTPPort  int

	Threshold     float64
	MaxCandidates int

	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig keeps data in ~/.medmap and serves HTTP on port 5000
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".medmap"),
		CacheMaxItems: 1000,
		CacheTTL:      10 * time.Minute,
		Transport:     "http",
		HTTPPort:      5000,
		Threshold:     0.1,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig reads MEDMAP_* environment variables over the defaults. A
// .env file in the working directory is loaded first; variables already set
// in the environment win. Unparseable or out-of-range values are ignored.
func LoadLiteConfig() *LiteConfig {
	_ = godotenv.Load()

	cfg := DefaultLiteConfig()

	lookupString("MEDMAP_DATA_DIR", &cfg.DataDir)
	lookupString("MEDMAP_CORPUS_FILE", &cfg.CorpusFile)
	lookupString("MEDMAP_TRANSPORT", &cfg.Transport)
	lookupString("MEDMAP_LOG_LEVEL", &cfg.LogLevel)
	lookupString("MEDMAP_LOG_FORMAT", &cfg.LogFormat)

	positive := func(n int) bool { return n > 0 }
	lookupInt("MEDMAP_CACHE_MAX_ITEMS", &cfg.CacheMaxItems, positive)
	lookupInt("MEDMAP_HTTP_PORT", &cfg.HTTPPort, positive)
	lookupInt("MEDMAP_MAX_CANDIDATES", &cfg.MaxCandidates, func(n int) bool { return n >= 0 })

	if v, ok := os.LookupEnv("MEDMAP_CACHE_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	if v, ok := os.LookupEnv("MEDMAP_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.Threshold = f
		}
	}

	return cfg
}

func lookupString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func lookupInt(key string, dst *int, valid func(int) bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && valid(n) {
		*dst = n
	}
}

// DBPath is the SQLite file inside DataDir
func (c *LiteConfig) DBPath() string {
	return filepath.Join(c.DataDir, "medmap.db")
}

// EnsureDataDir creates DataDir with owner-only write access
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o755)
}

// ToConfig expands the lite settings into a full service configuration.
// Logs go to stderr so the stdio transport keeps stdout for protocol
// messages.
func (c *LiteConfig) ToConfig() *domain.Config {
	diagnosis := domain.DefaultDiagnosisConfig()
	diagnosis.Threshold = c.Threshold
	diagnosis.MaxCandidates = c.MaxCandidates

	return &domain.Config{
		Environment: "lite",
		Server: domain.ServerConfig{
			Host:            "0.0.0.0",
			Port:            c.HTTPPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Cache: domain.CacheConfig{
			Enabled:     c.CacheMaxItems > 0,
			MemoryItems: c.CacheMaxItems,
			MemoryTTL:   c.CacheTTL,
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: "stderr",
		},
		Diagnosis: diagnosis,
		Outbreak:  domain.DefaultOutbreakConfig(),
		Clusters:  domain.DefaultClusterConfig(),
		RateLimit: domain.RateLimitConfig{Enabled: false},
		Breaker:   domain.DefaultBreakerConfig(),
	}
}
