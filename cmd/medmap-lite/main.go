// Package main provides the lightweight entry point for the MedMap diagnosis
// server. It needs no external services: reports and the corpus live in
// SQLite and rankings are cached in memory.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/api"
	"github.com/medmap-diagnosis-server/internal/cache"
	"github.com/medmap-diagnosis-server/internal/config"
	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/logging"
	"github.com/medmap-diagnosis-server/internal/mcp"
	"github.com/medmap-diagnosis-server/internal/seed"
	"github.com/medmap-diagnosis-server/internal/service"
	"github.com/medmap-diagnosis-server/internal/sqlstore"
)

var version = "v0.1.0"

func main() {
	// Load lightweight configuration
	liteCfg := config.LoadLiteConfig()
	cfg := liteCfg.ToConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, liteCfg, cfg, logger); err != nil {
		logger.WithError(err).Error("MedMap lite exited with error")
		os.Exit(1)
	}

	logger.Info("MedMap lite stopped")
}

func run(ctx context.Context, liteCfg *config.LiteConfig, cfg *domain.Config, logger *logrus.Logger) error {
	if err := liteCfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := sqlstore.Open(liteCfg.DBPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedIfEmpty(ctx, store, liteCfg.CorpusFile, logger); err != nil {
		return err
	}

	var rankingCache domain.RankingCache = cache.Noop{}
	if cfg.Cache.Enabled {
		memory, err := cache.NewMemoryCache(cfg.Cache.MemoryItems, cfg.Cache.MemoryTTL)
		if err != nil {
			return fmt.Errorf("failed to create memory cache: %w", err)
		}
		rankingCache = memory
	}

	services := service.Build(cfg, store, store, rankingCache, logger)

	logger.WithFields(logrus.Fields{
		"transport": liteCfg.Transport,
		"data_dir":  liteCfg.DataDir,
	}).Info("Starting MedMap diagnosis server (lite)")

	switch strings.ToLower(liteCfg.Transport) {
	case "stdio":
		return mcp.NewToolServer(services, version, logger).RunStdio(ctx)
	case "http", "":
		return api.NewServer(cfg, services, logger).Start(ctx)
	default:
		return fmt.Errorf("unsupported transport %q (want http or stdio)", liteCfg.Transport)
	}
}

// seedIfEmpty loads the configured corpus file, or the bundled corpus, into
// an empty store
func seedIfEmpty(ctx context.Context, store *sqlstore.Store, corpusFile string, logger *logrus.Logger) error {
	count, err := store.CountDiseases(ctx)
	if err != nil {
		return fmt.Errorf("failed to count diseases: %w", err)
	}
	if count > 0 {
		logger.WithField("diseases", count).Debug("Corpus already seeded")
		return nil
	}

	source := "bundled corpus"
	var docs []domain.DiseaseDocument
	if corpusFile != "" {
		source = corpusFile
		docs, err = seed.LoadFile(corpusFile)
	} else {
		docs, err = seed.Default()
	}
	if err != nil {
		return fmt.Errorf("failed to load seed corpus: %w", err)
	}

	n, err := store.UpsertDiseases(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to seed corpus: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"diseases": n,
		"source":   source,
	}).Info("Seeded disease corpus")
	return nil
}
