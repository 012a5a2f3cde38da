package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/api"
	"github.com/medmap-diagnosis-server/internal/cache"
	"github.com/medmap-diagnosis-server/internal/config"
	"github.com/medmap-diagnosis-server/internal/database"
	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/logging"
	"github.com/medmap-diagnosis-server/internal/metrics"
	"github.com/medmap-diagnosis-server/internal/repository"
	"github.com/medmap-diagnosis-server/internal/resilience"
	"github.com/medmap-diagnosis-server/internal/service"
)

func main() {
	configFile := flag.String("config", "", "Path to a config file (default: ./config.yaml, ./config/config.yaml, /etc/medmap/config.yaml)")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManagerWithFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger); err != nil {
			return err
		}
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := metrics.RegisterPool("postgres", db.PoolStats); err != nil {
		logger.WithError(err).Warn("Database pool metrics not registered")
	}

	corpus := resilience.NewCorpusStore(repository.NewDiseaseRepository(db.Pool, logger), cfg.Breaker, logger)
	reports := resilience.NewReportStore(repository.NewReportRepository(db.Pool, logger), cfg.Breaker, logger)

	rankingCache, closeCache := buildCache(cfg.Cache, logger)
	defer closeCache()

	services := service.Build(cfg, corpus, reports, rankingCache, logger)

	// Warm the corpus index so a missing corpus shows up at startup, not on
	// the first request.
	if snapshot, err := services.Index.Snapshot(ctx); err != nil {
		logger.WithError(err).Warn("Disease corpus not available yet; diagnosis will return 503 until it is seeded")
	} else {
		logger.WithFields(logrus.Fields{
			"diseases":       snapshot.Model.Len(),
			"corpus_version": snapshot.Version,
		}).Info("Disease corpus loaded")
	}

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting MedMap diagnosis server")

	return api.NewServer(cfg, services, logger).Start(ctx)
}

func migrate(ctx context.Context, databaseURL, migrationsPath string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(ctx)
}

// buildCache assembles the memory and Redis tiers that are configured. Redis
// failures degrade to memory only.
func buildCache(cfg domain.CacheConfig, logger *logrus.Logger) (domain.RankingCache, func()) {
	noClose := func() {}
	if !cfg.Enabled {
		return cache.Noop{}, noClose
	}

	var tiers []domain.RankingCache
	if cfg.MemoryItems > 0 {
		memory, err := cache.NewMemoryCache(cfg.MemoryItems, cfg.MemoryTTL)
		if err != nil {
			logger.WithError(err).Warn("Memory ranking cache disabled")
		} else {
			tiers = append(tiers, memory)
		}
	}

	closeFn := noClose
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis ranking cache unavailable; continuing with memory cache only")
		} else {
			tiers = append(tiers, redisCache)
			closeFn = func() {
				if err := redisCache.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close Redis client")
				}
			}
		}
	}

	if len(tiers) == 0 {
		return cache.Noop{}, closeFn
	}
	return cache.NewTiered(tiers...), closeFn
}
